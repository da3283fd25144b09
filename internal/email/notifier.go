package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

const nextRunLayout = "2006-01-02 15:04 MST"

// Notifier mails a schedule's owner when a scheduled capture fails.
type Notifier struct {
	users  repository.UserRepository
	sender Sender
	logger *slog.Logger
}

func NewNotifier(users repository.UserRepository, sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{users: users, sender: sender, logger: logger.With("component", "notifier")}
}

// NotifyScheduleFailed is a no-op for owners without a known email.
func (n *Notifier) NotifyScheduleFailed(ctx context.Context, s *domain.Schedule, job *domain.CaptureJob, message string) error {
	user, err := n.users.FindByID(ctx, s.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			n.logger.WarnContext(ctx, "schedule owner not found, skipping notification", "schedule_id", s.ID, "owner_id", s.OwnerID)
			return nil
		}
		return fmt.Errorf("find owner: %w", err)
	}
	if user.Email == nil || *user.Email == "" {
		n.logger.DebugContext(ctx, "owner has no email, skipping notification", "owner_id", s.OwnerID)
		return nil
	}

	if err := n.sender.Send(ctx, scheduleFailedMessage(*user.Email, s, job, message)); err != nil {
		return fmt.Errorf("notify schedule failure: %w", err)
	}
	n.logger.InfoContext(ctx, "schedule failure notified", "schedule_id", s.ID, "owner_id", s.OwnerID)
	return nil
}

func scheduleFailedMessage(to string, s *domain.Schedule, job *domain.CaptureJob, message string) Message {
	jobRef := "untracked run"
	tags := map[string]string{"kind": "schedule_failed", "schedule_id": s.ID}
	if job != nil && job.ID != "" {
		jobRef = "job " + job.ID
		tags["job_id"] = job.ID
	}
	next := s.NextRunAt.Format(nextRunLayout)
	if s.Paused || s.NextRunAt.IsZero() {
		next = "not scheduled"
	}

	// one failure per line, as aggregated by the executor
	failures := strings.Split(message, "; ")

	var h strings.Builder
	fmt.Fprintf(&h, "<p>The %s capture scheduled as <b>%s</b> failed (%s).</p><ul>",
		html.EscapeString(string(s.CaptureType)), html.EscapeString(s.Name), html.EscapeString(jobRef))
	for _, f := range failures {
		fmt.Fprintf(&h, "<li>%s</li>", html.EscapeString(f))
	}
	fmt.Fprintf(&h, "</ul><p>Next run: %s</p>", html.EscapeString(next))

	var t strings.Builder
	fmt.Fprintf(&t, "The %s capture scheduled as %q failed (%s).\n\n", s.CaptureType, s.Name, jobRef)
	for _, f := range failures {
		fmt.Fprintf(&t, "- %s\n", f)
	}
	fmt.Fprintf(&t, "\nNext run: %s\n", next)

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Scheduled capture %q failed", s.Name),
		HTML:    h.String(),
		Text:    t.String(),
		Tags:    tags,
	}
}
