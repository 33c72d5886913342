package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/example/room-reservation/internal/application"
	"github.com/example/room-reservation/internal/mail"
)

var statusEmail = template.Must(template.New("status").Parse(`<p>Hello {{.UserName}},</p>
<p>Your booking for <strong>{{.RoomName}}</strong> has been <strong>{{.Status}}</strong>.</p>
{{- if .Rejected}}
<p><strong>Reason:</strong> {{.Reason}}</p>
{{- end}}
<p><strong>Booking Details:</strong></p>
<ul>
  <li><strong>Room:</strong> {{.RoomName}}</li>
  <li><strong>Location:</strong> {{.Location}}</li>
  <li><strong>Start:</strong> {{.Start}}</li>
  <li><strong>End:</strong> {{.End}}</li>
</ul>
<p>Thank you,<br/>{{.Signature}}</p>
`))

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

type statusEmailData struct {
	UserName  string
	RoomName  string
	Status    string
	Rejected  bool
	Reason    string
	Location  string
	Start     string
	End       string
	Signature string
}

// EmailSender mails the booking owner about approvals and rejections.
type EmailSender struct {
	directory application.Directory
	mailer    mail.Mailer
	location  *time.Location
	signature string
}

// NewEmailSender renders times in loc (UTC when nil).
func NewEmailSender(directory application.Directory, mailer mail.Mailer, loc *time.Location) *EmailSender {
	if loc == nil {
		loc = time.UTC
	}
	return &EmailSender{directory: directory, mailer: mailer, location: loc, signature: "Room Reservations"}
}

// Deliver sends the status email. Pending notifications produce no mail.
func (s *EmailSender) Deliver(ctx context.Context, n application.Notification) error {
	if n.Status != application.BookingStatusApproved && n.Status != application.BookingStatusRejected {
		return nil
	}
	users, err := s.directory.LookupUsers(ctx, []string{n.RecipientUserID})
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	user, ok := users[n.RecipientUserID]
	if !ok || user.Email == "" {
		return Permanent(fmt.Errorf("recipient %s has no email address", n.RecipientUserID))
	}
	rooms, err := s.directory.LookupRooms(ctx, []string{n.RoomID})
	if err != nil {
		return fmt.Errorf("lookup room: %w", err)
	}
	room, ok := rooms[n.RoomID]
	if !ok {
		room = application.Room{ID: n.RoomID, Name: n.RoomID}
	}

	msg, err := s.render(user, room, n)
	if err != nil {
		return Permanent(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			return Permanent(err)
		}
		return err
	}
	return nil
}

func (s *EmailSender) render(user application.User, room application.Room, n application.Notification) (mail.Message, error) {
	title := "Approved"
	if n.Status == application.BookingStatusRejected {
		title = "Rejected"
	}
	location := room.Location
	if strings.TrimSpace(location) == "" {
		location = "N/A"
	}

	var body bytes.Buffer
	err := statusEmail.Execute(&body, statusEmailData{
		UserName:  user.Name,
		RoomName:  room.Name,
		Status:    strings.ToUpper(string(n.Status)),
		Rejected:  n.Status == application.BookingStatusRejected,
		Reason:    n.Reason,
		Location:  location,
		Start:     n.Start.In(s.location).Format(timeLayout),
		End:       n.End.In(s.location).Format(timeLayout),
		Signature: s.signature,
	})
	if err != nil {
		return mail.Message{}, fmt.Errorf("render status email: %w", err)
	}
	return mail.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Booking %s - %s", title, room.Name),
		HTML:    body.String(),
	}, nil
}
