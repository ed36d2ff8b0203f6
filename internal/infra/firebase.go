// README: Firebase Admin SDK initialisation; token verifier, FCM and storage clients.
package infra

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Token providers. Session tokens carry a user id as UID; Firebase tokens
// carry the Firebase account UID, which must be mapped to a user.
const (
	ProviderSession  = "session"
	ProviderFirebase = "firebase"
)

// Token holds the verified token data used by downstream middleware.
type Token struct {
	UID      string
	Provider string
	Claims   map[string]interface{}
}

// VerifiedEmail is the email claim when the provider marked it verified.
func (t *Token) VerifiedEmail() string {
	if ok, _ := t.Claims["email_verified"].(bool); !ok {
		return ""
	}
	email, _ := t.Claims["email"].(string)
	return email
}

// TokenVerifier verifies a raw bearer token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Token, error)
}

// ChainVerifier accepts a token if any of its verifiers does, tried in order.
type ChainVerifier []TokenVerifier

func (c ChainVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	errs := make([]error, 0, len(c))
	for _, v := range c {
		token, err := v.VerifyIDToken(ctx, idToken)
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errors.Join(errs...)
}

type Firebase struct {
	app  *firebase.App
	opts []option.ClientOption
}

// NewFirebase initialises the Admin SDK. If credentialsFile is non-empty it is
// used as the service-account JSON path; otherwise application-default
// credentials are used.
func NewFirebase(ctx context.Context, projectID, credentialsFile string) (*Firebase, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return &Firebase{app: app, opts: opts}, nil
}

func (f *Firebase) Verifier(ctx context.Context) (TokenVerifier, error) {
	client, err := f.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (f *Firebase) Messaging(ctx context.Context) (*messaging.Client, error) {
	client, err := f.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return client, nil
}

// Storage returns a GCS client sharing the Firebase credentials.
func (f *Firebase) Storage(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, f.opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

type firebaseVerifier struct {
	client *auth.Client
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &Token{UID: token.UID, Provider: ProviderFirebase, Claims: token.Claims}, nil
}
