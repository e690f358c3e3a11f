package lib

import (
	"context"
	"log"
	"os"
	"path"
	"vmp/src/notify"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var innerApp *firebase.App
var innerMessaging *messaging.Client

func getOpts() *option.ClientOption {
	secretsPath := os.Getenv("SECRETS_DIR")
	opt := option.WithCredentialsFile(path.Join(secretsPath, "admin-sdk-credentials.json"))
	return &opt
}

func GetFirebaseMessaging() (*messaging.Client, error) {
	if innerMessaging != nil {
		return innerMessaging, nil
	}
	opt := getOpts()
	if innerApp == nil {
		app, err := firebase.NewApp(context.Background(), nil, *opt)
		if err != nil {
			log.Printf("error intializing app: %v\n", err.Error())
			return nil, err
		}
		innerApp = app
	}

	msg, err := innerApp.Messaging(context.Background())
	if err != nil {
		log.Printf("error initializing FCM: %v\n", err.Error())
		return nil, err
	}
	innerMessaging = msg
	return msg, nil
}

// FCMDispatcher sends push notifications through Firebase Cloud Messaging.
type FCMDispatcher struct {
	client *messaging.Client
}

func NewFCMDispatcher(c *messaging.Client) *FCMDispatcher {
	return &FCMDispatcher{client: c}
}

func (d *FCMDispatcher) Send(ctx context.Context, tokens []string, msg notify.Message) (notify.Result, error) {
	br, err := d.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return notify.Result{}, err
	}
	res := notify.Result{Success: br.SuccessCount, Failure: br.FailureCount}
	for i, r := range br.Responses {
		if r.Success || r.Error == nil {
			continue
		}
		if messaging.IsUnregistered(r.Error) || errorutils.IsInvalidArgument(r.Error) {
			res.InvalidTokens = append(res.InvalidTokens, tokens[i])
		}
	}
	return res, nil
}
