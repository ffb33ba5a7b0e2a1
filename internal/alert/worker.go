package alert

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"site-attendance-backend/internal/model"
	"site-attendance-backend/internal/store"
)

// Sender defines the interface for delivering a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool delivers out-of-area attendance alerts to the supervisors
// subscribed to a project. Jobs carry the ID of the flagged session.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new alert worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("alert worker %d started", id)
	for {
		select {
		case sessionID := <-wp.jobs:
			wp.sendAlertsForSession(ctx, sessionID)
		case <-ctx.Done():
			log.Printf("alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for a flagged session.
func (wp *WorkerPool) Dispatch(sessionID string) {
	wp.jobs <- sessionID
}

// sendAlertsForSession loads the flagged session and pushes one message per
// project subscription.
func (wp *WorkerPool) sendAlertsForSession(ctx context.Context, sessionID string) {
	var session model.AttendanceSession
	if err := wp.store.DB().WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		log.Printf("error fetching session %s for alert: %v", sessionID, err)
		return
	}

	subscriptions, err := wp.store.ListSubscriptions(ctx, session.ProjectID)
	if err != nil {
		log.Printf("error fetching subscriptions for project %s: %v", session.ProjectID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	message := wp.alertMessage(ctx, &session)
	log.Printf("sending %d out-of-area alerts for session %s", len(subscriptions), sessionID)
	for _, sub := range subscriptions {
		wp.sendAlert(sub, []byte(message))
	}
}

// alertMessage falls back to the raw area ID when the catalog lookup fails;
// an alert with a blunt label still beats no alert.
func (wp *WorkerPool) alertMessage(ctx context.Context, session *model.AttendanceSession) string {
	areaLabel := "an unassigned area"
	if session.AreaID != nil {
		areaLabel = *session.AreaID
		if a, err := wp.store.GetWorkArea(ctx, *session.AreaID); err == nil && a != nil {
			areaLabel = a.Name
		}
	}

	distance := 0.0
	action := "checked in"
	if session.CheckOutWithinArea != nil && !*session.CheckOutWithinArea {
		action = "checked out"
		if session.CheckOutDistanceM != nil {
			distance = *session.CheckOutDistanceM
		}
	} else if session.CheckInDistanceM != nil {
		distance = *session.CheckInDistanceM
	}

	return fmt.Sprintf("Worker %s %s %.0f m outside %s on %s",
		session.PersonID, action, distance, areaLabel, session.Date)
}

// sendAlert pushes a single notification, pruning subscriptions the push
// service reports as gone.
func (wp *WorkerPool) sendAlert(sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending alert to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("subscription %s expired, removing", sub.Endpoint)
		if err := wp.store.DeleteSubscription(context.Background(), sub.Endpoint); err != nil {
			log.Printf("error deleting expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
