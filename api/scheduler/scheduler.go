package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/codemeet/codemeet-api/api/grants"
	"github.com/codemeet/codemeet-api/api/ratelimit"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	templates "github.com/codemeet/codemeet-api/templates/html"
)

// bucketIdleFor is how long an untouched rate-limit bucket survives before
// the sweep reclaims it; idle buckets refill to full anyway so dropping them
// changes nothing observable
const bucketIdleFor = 10 * time.Minute

// Scheduler handles the periodic background jobs: reclaiming expired
// promotion grants and idle rate-limit buckets, and mailing hosts whose
// scheduled sessions start within the hour. Sweeps only apply to the
// in-memory stores; the Redis-backed ones expire keys on their own.
type Scheduler struct {
	cron    *cron.Cron
	SDB     databases.SessionDatabase
	UDB     databases.UserDatabase
	Cfg     *config.Config
	Grants  *grants.MemoryStore
	Buckets []*ratelimit.MemoryLimiter
}

// NewScheduler creates a new scheduler instance. Grants and Buckets may be
// nil when the Redis variants are in use.
func NewScheduler(
	sDB databases.SessionDatabase,
	uDB databases.UserDatabase,
	cfg *config.Config,
	grantStore *grants.MemoryStore,
	buckets ...*ratelimit.MemoryLimiter,
) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		SDB:     sDB,
		UDB:     uDB,
		Cfg:     cfg,
		Grants:  grantStore,
		Buckets: buckets,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	_, err := s.cron.AddFunc("@every 1m", s.sweepStores)
	if err != nil {
		zap.S().Errorw("failed to register store sweep job", "error", err)
	}

	_, err = s.cron.AddFunc("@every 5m", s.sendSessionReminders)
	if err != nil {
		zap.S().Errorw("failed to register session reminder job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Session scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Session scheduler stopped")
}

// sweepStores reclaims memory held by expired grants and idle buckets
func (s *Scheduler) sweepStores() {
	if s.Grants != nil {
		if n := s.Grants.Sweep(); n > 0 {
			zap.S().Debugw("swept expired promotion grants", "removed", n)
		}
	}
	for _, buckets := range s.Buckets {
		if buckets == nil {
			continue
		}
		if n := buckets.Sweep(bucketIdleFor); n > 0 {
			zap.S().Debugw("swept idle rate-limit buckets", "removed", n)
		}
	}
}

// sendSessionReminders mails hosts whose scheduled sessions begin within the
// next hour and have not started yet. The reminderSent flag keeps repeat runs
// from mailing twice.
func (s *Scheduler) sendSessionReminders() {
	if s.Cfg.SendgridAPIKey == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()
	oneHourFromNow := now.Add(time.Hour)

	filter := bson.M{
		"session.startedAt":    nil,
		"session.endedAt":      nil,
		"session.reminderSent": false,
		"session.scheduledFor": bson.M{
			"$gt": primitive.NewDateTimeFromTime(now),
			"$lt": primitive.NewDateTimeFromTime(oneHourFromNow),
		},
	}

	sessions, err := s.SDB.Find(ctx, filter)
	if err != nil {
		zap.S().Errorw("failed to find sessions needing reminder", "error", err)
		return
	}

	sent := 0
	for _, session := range sessions {
		if s.sendReminderEmail(ctx, session.Details.HostID, session.Details.Title, session.Details.ScheduledFor) {
			_, err := s.SDB.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{
				"$set": bson.M{"session.reminderSent": true},
			})
			if err != nil {
				zap.S().Errorw("failed to mark reminder sent", "error", err, "sessionID", session.ID.Hex())
			}
			sent++
		}
	}

	if sent > 0 {
		zap.S().Infow("Session reminder run complete", "remindersSent", sent)
	}
}

func (s *Scheduler) sendReminderEmail(ctx context.Context, hostID, title string, scheduledFor *primitive.DateTime) bool {
	email, name := s.getUserEmail(ctx, hostID)
	if email == "" {
		return false
	}

	when := "soon"
	if scheduledFor != nil {
		when = scheduledFor.Time().UTC().Format("15:04 MST")
	}

	subject := "Your session starts soon - CodeMeet"
	body := "Your session \"" + title + "\" is scheduled to start at " + when + ".\n\nOpen your dashboard to go live when you are ready."
	htmlContent := templates.RenderGenericEmail(subject, body)

	if err := s.sendEmail(email, name, subject, htmlContent, body); err != nil {
		zap.S().Errorw("failed to send session reminder email", "error", err, "hostID", hostID)
		return false
	}
	return true
}

func (s *Scheduler) getUserEmail(ctx context.Context, hostID string) (email, name string) {
	oid, err := primitive.ObjectIDFromHex(hostID)
	if err != nil {
		return "", ""
	}
	user, err := s.UDB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil || user.Details.Email == "" {
		return "", ""
	}
	return user.Details.Email, user.Details.Name
}

func (s *Scheduler) sendEmail(toEmail, toName, subject, htmlContent, plainText string) error {
	from := mail.NewEmail("CodeMeet", s.Cfg.SenderEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	client := sendgrid.NewSendClient(s.Cfg.SendgridAPIKey)
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
	return nil
}
