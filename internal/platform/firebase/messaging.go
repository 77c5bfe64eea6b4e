package firebase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/amora/internal/platform/push"
)

// fcmBatchLimit is the provider's multicast ceiling.
const fcmBatchLimit = 500

// Pusher implements push.Pusher on FCM multicast.
type Pusher struct {
	client      *messaging.Client
	concurrency int
	timeout     time.Duration
}

func NewPusher(client *messaging.Client) *Pusher {
	return &Pusher{client: client, concurrency: 4, timeout: 15 * time.Second}
}

// SendMulticast splits tokens into provider-sized chunks and sends them with
// bounded concurrency. A failed chunk marks its own tokens failed and leaves
// the other chunks alone. When nothing was delivered and a failure was
// transient the call returns push.ErrUnavailable along with the results.
func (p *Pusher) SendMulticast(ctx context.Context, tokens []string, msg push.Message) ([]push.TokenResult, error) {
	results := make([]push.TokenResult, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(tokens); start += fcmBatchLimit {
		end := min(start+fcmBatchLimit, len(tokens))
		g.Go(func() error {
			p.sendChunk(gctx, tokens[start:end], msg, results[start:end])
			return nil
		})
	}
	_ = g.Wait()
	if push.Unavailable(results) {
		return results, fmt.Errorf("fcm multicast: %w", push.ErrUnavailable)
	}
	return results, nil
}

func (p *Pusher) sendChunk(ctx context.Context, tokens []string, msg push.Message, out []push.TokenResult) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.SendEachForMulticast(ctx, buildMulticast(tokens, msg))
	for i, tok := range tokens {
		out[i].Token = tok
		if err != nil {
			// the SDK only fails the whole call for invalid messages
			out[i].Err = fmt.Errorf("fcm multicast: %w", err)
			continue
		}
		r := resp.Responses[i]
		out[i].OK = r.Success
		if !r.Success {
			out[i].Err = r.Error
			out[i].Unregistered = messaging.IsUnregistered(r.Error)
			out[i].Retryable = !out[i].Unregistered && !permanent(r.Error)
		}
	}
}

// permanent reports failures that a later attempt cannot fix.
func permanent(err error) bool {
	return messaging.IsInvalidArgument(err) ||
		errorutils.IsInvalidArgument(err) ||
		messaging.IsSenderIDMismatch(err) ||
		messaging.IsThirdPartyAuthError(err)
}

func buildMulticast(tokens []string, msg push.Message) *messaging.MulticastMessage {
	m := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}

	android := &messaging.AndroidConfig{Priority: "normal"}
	apnsHeaders := map[string]string{"apns-push-type": "alert", "apns-priority": "5"}
	aps := &messaging.Aps{Category: msg.Category, Sound: "default"}

	if msg.Priority == push.PriorityHigh {
		android.Priority = "high"
		apnsHeaders["apns-priority"] = "10"
	}
	if msg.TTL > 0 {
		ttl := msg.TTL
		android.TTL = &ttl
		apnsHeaders["apns-expiration"] = strconv.FormatInt(time.Now().Add(msg.TTL).Unix(), 10)
	}
	if msg.Wake {
		aps.ContentAvailable = true
	}

	m.Android = android
	m.APNS = &messaging.APNSConfig{
		Headers: apnsHeaders,
		Payload: &messaging.APNSPayload{Aps: aps},
	}
	return m
}
