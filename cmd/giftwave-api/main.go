// README: Entry point; loads config, wires stores, services and notifiers, then serves HTTP until signalled.
package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "giftwave/internal/config"
    httptransport "giftwave/internal/http"
    "giftwave/internal/infra"
    "giftwave/internal/logging"
    "giftwave/internal/media"
    "giftwave/internal/modules/account"
    "giftwave/internal/modules/matching"
    "giftwave/internal/modules/order"
    "giftwave/internal/modules/otp"
    "giftwave/internal/modules/pricing"
    "giftwave/internal/modules/reputation"
    "giftwave/internal/modules/safety"
    "giftwave/internal/notify"
)

// notifier reaches rider devices and the admin topic.
type notifier interface {
    matching.Pusher
    safety.TopicPusher
}

func main() {
    cfg, err := config.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }

    log, err := logging.New(cfg.Env)
    if err != nil {
        fmt.Fprintf(os.Stderr, "logger: %v\n", err)
        os.Exit(1)
    }
    defer func() { _ = log.Sync() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if err := run(ctx, cfg, log); err != nil {
        log.Fatal("server exited", zap.Error(err))
    }
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
    dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
    if err != nil {
        return err
    }
    defer dbPool.Close()

    redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
    if err != nil {
        return err
    }
    defer redisClient.Close()

    sink := notify.NewLogSink(log)
    var (
        sms      otp.SMSSender    = sink
        email    otp.EmailSender  = sink
        pusher   notifier         = sink
        images   account.MediaStore
        verifier infra.TokenVerifier
    )

    if cfg.SMS.Enabled {
        client, err := infra.NewSNS(ctx)
        if err != nil {
            return err
        }
        sms = notify.NewSNSSender(client, cfg.SMS.SenderID)
    }
    if cfg.SMTP.Host != "" {
        email = notify.NewSMTPSender(notify.SMTPConfig{
            Host:     cfg.SMTP.Host,
            Port:     cfg.SMTP.Port,
            Username: cfg.SMTP.Username,
            Password: cfg.SMTP.Password,
            From:     cfg.SMTP.From,
        })
    }

    if cfg.Firebase.ProjectID != "" {
        fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
        if err != nil {
            return err
        }
        fcm, err := fb.Messaging(ctx)
        if err != nil {
            return err
        }
        pusher = notify.NewFCMPusher(fcm, log)

        if cfg.Firebase.StorageBucket != "" {
            gcs, err := fb.Storage(ctx)
            if err != nil {
                return err
            }
            defer gcs.Close()
            images = media.NewStorage(gcs, cfg.Firebase.StorageBucket)
        }

        if cfg.Auth.Verifier == config.VerifierFirebase {
            if verifier, err = fb.Verifier(ctx); err != nil {
                return err
            }
        }
    } else {
        log.Warn("firebase not configured; push goes to the log and uploads are disabled")
    }

    tokens := infra.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
    if verifier == nil {
        verifier = tokens
    } else {
        // Sign-in still issues session tokens; Firebase ID tokens are accepted too.
        verifier = infra.ChainVerifier{tokens, verifier}
    }

    otpSvc := otp.NewService(
        otp.NewRedisStore(redisClient, cfg.OTP.Retention),
        sms, email, log.Named("otp"),
        otp.WithTTL(cfg.OTP.TTL),
    )

    accountSvc := account.NewService(account.NewStore(dbPool), otpSvc, tokens, images, log.Named("account"))
    pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

    orderStore := order.NewStore(dbPool)
    reputationSvc := reputation.NewService(orderStore, accountSvc, log.Named("reputation"))
    dispatcher := matching.NewDispatcher(matching.NewStore(redisClient), pusher, cfg.Matching.RadiusKm, log.Named("dispatch"))

    opts := []order.Option{order.WithReputation(reputationSvc), order.WithAnnouncer(dispatcher)}
    if images != nil {
        opts = append(opts, order.WithMedia(images))
    }
    orderSvc := order.NewService(orderStore, accountSvc, pricingSvc, log.Named("order"), opts...)
    matchingSvc := matching.NewService(orderSvc, log.Named("matching"))
    safetySvc := safety.NewService(safety.NewStore(dbPool), accountSvc, orderSvc, pusher, log.Named("safety"))

    handler, err := httptransport.NewServer(httptransport.ServerDeps{
        Accounts:       accountSvc,
        OTP:            otpSvc,
        Order:          orderSvc,
        Matching:       matchingSvc,
        Dispatcher:     dispatcher,
        Pricing:        pricingSvc,
        Reputation:     reputationSvc,
        Safety:         safetySvc,
        Verifier:       verifier,
        Log:            log,
        AllowOrigins:   cfg.HTTP.AllowOrigins,
        RequestTimeout: cfg.Store.Timeout,
        RatePerMinute:  cfg.HTTP.RateLimit,
        RateBurst:      cfg.HTTP.RateBurst,
    }).Routes()
    if err != nil {
        return err
    }

    server := &http.Server{
        Addr:              cfg.HTTP.Addr,
        Handler:           handler,
        ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
    }

    errCh := make(chan error, 1)
    go func() {
        log.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("verifier", cfg.Auth.Verifier))
        if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case err := <-errCh:
        return err
    case <-ctx.Done():
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    log.Info("shutting down")
    return server.Shutdown(shutdownCtx)
}
