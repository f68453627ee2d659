package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wildpals/internal/cache"
	"wildpals/internal/config"
	"wildpals/internal/database"
	"wildpals/internal/handler"
	"wildpals/internal/queue"
	appredis "wildpals/internal/redis"
	"wildpals/internal/repository"
	"wildpals/internal/service"
	"wildpals/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// refreshTokenSweepInterval controls how often expired refresh tokens are
// purged from the database.
const refreshTokenSweepInterval = time.Hour

// Run wires the application together and serves HTTP until SIGINT/SIGTERM.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := appredis.NewClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx); err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	rideRepo := repository.NewRideRepository(db)
	clubRepo := repository.NewClubRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	feedCache := cache.NewRideFeedCache(redisClient.Client)
	publisher := queue.NewPublisher(redisClient.Client)
	consumer := queue.NewConsumer(redisClient.Client)

	emailSender := service.NewEmailSender(cfg)

	userService := service.NewUserService(userRepo)
	authService := service.NewAuthService(refreshTokenRepo, userRepo, emailSender, cfg)
	rideService := service.NewRideService(rideRepo, userRepo, feedCache, db, publisher, cfg)
	clubService := service.NewClubService(clubRepo, userRepo, db, publisher, cfg)
	messageService := service.NewMessageService(messageRepo, userRepo, db)

	mediaService, err := service.NewMediaService(ctx, cfg)
	if err != nil {
		log.Printf("[Server] Media service disabled: %v", err)
		mediaService = nil
	}

	names := &repoNameProvider{users: userRepo, rides: rideRepo, clubs: clubRepo}
	workerHandler := worker.NewHandler(feedCache, names)
	workerHandler.SetMessageCreator(messageService)

	manager := worker.NewManager(consumer, workerHandler, worker.DefaultManagerConfig())
	if err := manager.Start(ctx); err != nil {
		return err
	}

	go sweepRefreshTokens(ctx, refreshTokenRepo)

	router := NewRouter(RouterConfig{
		AuthHandler:    handler.NewAuthHandler(userService, authService),
		UserHandler:    handler.NewUserHandler(userService, mediaService),
		RideHandler:    handler.NewRideHandler(rideService),
		ClubHandler:    handler.NewClubHandler(clubService),
		MessageHandler: handler.NewMessageHandler(messageService),
		JWTSecret:      cfg.JWTSecret,
		Port:           cfg.ServerPort,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on port %s", cfg.ServerPort)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("[Server] Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] HTTP shutdown error: %v", err)
	}

	manager.Stop()

	log.Println("[Server] Stopped")
	return nil
}

// sweepRefreshTokens periodically deletes refresh tokens that expired more
// than a day ago. Expired tokens are rejected on use regardless, the sweep
// just keeps the table small.
func sweepRefreshTokens(ctx context.Context, repo repository.RefreshTokenRepository) {
	ticker := time.NewTicker(refreshTokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpired(ctx, 24*time.Hour)
			if err != nil {
				log.Printf("[Server] Refresh token sweep failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("[Server] Swept %d expired refresh tokens", deleted)
			}
		}
	}
}

// repoNameProvider resolves display names for worker-generated system
// messages straight from the repositories.
type repoNameProvider struct {
	users repository.UserRepository
	rides repository.RideRepository
	clubs repository.ClubRepository
}

func (p *repoNameProvider) UserName(ctx context.Context, userID int64) (string, error) {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

func (p *repoNameProvider) RideTitle(ctx context.Context, rideID int64) (string, error) {
	ride, err := p.rides.GetByID(ctx, rideID)
	if err != nil {
		return "", err
	}
	return ride.Title, nil
}

func (p *repoNameProvider) ClubName(ctx context.Context, clubID int64) (string, error) {
	club, err := p.clubs.GetByID(ctx, clubID)
	if err != nil {
		return "", err
	}
	return club.Name, nil
}
