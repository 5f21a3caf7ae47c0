package firebaseapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type Options struct {
	// EncodedCredentials is a base64 service account JSON. It wins over
	// CredentialsFile when set.
	EncodedCredentials string
	CredentialsFile    string
	ProjectID          string
	StorageBucket      string
}

// New initializes the Firebase Admin app used for Firestore and Storage.
func New(ctx context.Context, opts Options) (*firebase.App, error) {
	var opt option.ClientOption

	if opts.EncodedCredentials != "" {
		decoded, err := base64.StdEncoding.DecodeString(opts.EncodedCredentials)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("Firebase: Initializing from FIREBASE_SERVICE_ACCOUNT_JSON environment variable.")
	} else {
		if _, err := os.Stat(opts.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_SERVICE_ACCOUNT_JSON is not set", opts.CredentialsFile)
		}
		opt = option.WithCredentialsFile(opts.CredentialsFile)
		log.Printf("Firebase: Initializing from local file: %s.", opts.CredentialsFile)
	}

	conf := &firebase.Config{
		ProjectID:     opts.ProjectID,
		StorageBucket: opts.StorageBucket,
	}
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}
