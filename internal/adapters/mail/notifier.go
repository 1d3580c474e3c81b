package mail

import (
	"context"
	"text/template"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	gomail "github.com/wneessen/go-mail"
)

const (
	kindConfirmation = "confirmation"
	kindCancellation = "cancellation"
)

var (
	confirmationTmpl = template.Must(template.New(kindConfirmation).Parse(`Dear {{.Salutation}} {{.LastName}},

Thank you for choosing {{.HotelName}} for your stay. We are pleased to inform you that your booking has been confirmed as per the details below:

- Booking ID: {{.BookingID}}
- Number of guests: {{.NumAdults}} adults and {{.NumChildren}} children
- Room type: {{.RoomTypes}}
- Check-in date: {{.StartDate}}
- Check-out date: {{.EndDate}}
- Hotel address: {{.HotelAddress}}

If you wish to cancel your booking, please head over to this link: {{.CancelLink}}

Best regards,
{{.Signature}}
`))

	cancellationTmpl = template.Must(template.New(kindCancellation).Parse(`Dear {{.Salutation}} {{.LastName}},

Your booking with {{.HotelName}} has been successfully cancelled. Below are the details of your cancelled booking:

- Booking ID: {{.BookingID}}
- Number of guests: {{.NumAdults}} adults and {{.NumChildren}} children
- Room type: {{.RoomTypes}}
- Check-in date: {{.StartDate}}
- Check-out date: {{.EndDate}}
- Hotel address: {{.HotelAddress}}

If you have any questions or need further assistance, please do not hesitate to contact us.

Best regards,
{{.Signature}}
`))
)

// Sender delivers composed messages. *gomail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

type Notifier struct {
	sender   Sender
	from     string
	fromName string
	timeout  time.Duration
	logger   observability.Logger
}

func NewNotifier(sender Sender, from, fromName string, timeout time.Duration, logger observability.Logger) *Notifier {
	return &Notifier{sender: sender, from: from, fromName: fromName, timeout: timeout, logger: logger}
}

// NewSMTPClient builds an authenticated SMTP client that upgrades to TLS.
func NewSMTPClient(host string, port int, user, password string) (*gomail.Client, error) {
	client, err := gomail.NewClient(host,
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(user),
		gomail.WithPassword(password),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, errors.Wrap(err, "smtp client")
	}
	return client, nil
}

func (n *Notifier) SendConfirmation(ctx context.Context, note domain.Notification) error {
	return n.send(ctx, kindConfirmation, "Booking Confirmation - ", confirmationTmpl, note)
}

func (n *Notifier) SendCancellation(ctx context.Context, note domain.Notification) error {
	return n.send(ctx, kindCancellation, "Booking Cancelled - ", cancellationTmpl, note)
}

func (n *Notifier) send(ctx context.Context, kind, subjectPrefix string, tmpl *template.Template, note domain.Notification) error {
	msg, err := n.compose(subjectPrefix, tmpl, note)
	if err != nil {
		observability.Notifications.WithLabelValues(kind, "invalid").Inc()
		return err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		observability.Notifications.WithLabelValues(kind, "failed").Inc()
		return errors.Wrapf(err, "send %s mail for booking %s", kind, note.Booking.ID)
	}

	observability.Notifications.WithLabelValues(kind, "sent").Inc()
	n.logger.WithFields(map[string]interface{}{
		"kind":       kind,
		"booking_id": note.Booking.ID.String(),
	}).Info("booking mail sent")
	return nil
}

func (n *Notifier) compose(subjectPrefix string, tmpl *template.Template, note domain.Notification) (*gomail.Msg, error) {
	if note.To == "" {
		return nil, domain.Invalidf("booking %s has no recipient address", note.Booking.ID)
	}

	msg := gomail.NewMsg(gomail.WithEncoding(gomail.NoEncoding))
	if err := msg.FromFormat(n.fromName, n.from); err != nil {
		return nil, errors.Wrap(err, "mail sender")
	}
	if err := msg.To(note.To); err != nil {
		return nil, domain.Invalidf("recipient %q: %v", note.To, err)
	}
	data := newMailData(note, n.fromName)
	msg.Subject(subjectPrefix + data.HotelName)
	if err := msg.SetBodyTextTemplate(tmpl, data); err != nil {
		return nil, errors.Wrap(err, "render mail body")
	}
	return msg, nil
}

type mailData struct {
	Salutation   string
	LastName     string
	HotelName    string
	HotelAddress string
	BookingID    string
	NumAdults    int
	NumChildren  int
	RoomTypes    string
	StartDate    string
	EndDate      string
	CancelLink   string
	Signature    string
}

func newMailData(note domain.Notification, signature string) mailData {
	b := note.Booking
	hotelName := note.Hotel.Name
	if hotelName == "" {
		hotelName = b.HotelName
	}
	return mailData{
		Salutation:   b.GuestSalutation,
		LastName:     b.GuestLastName,
		HotelName:    hotelName,
		HotelAddress: note.Hotel.Address,
		BookingID:    b.ID.String(),
		NumAdults:    b.NumAdults,
		NumChildren:  b.NumChildren,
		RoomTypes:    b.RoomTypes,
		StartDate:    b.StartDate.Format(domain.DateLayout),
		EndDate:      b.EndDate.Format(domain.DateLayout),
		CancelLink:   note.CancelLink,
		Signature:    signature,
	}
}

// LogSender logs messages instead of delivering them. It is used when no
// SMTP account is configured.
type LogSender struct {
	Logger observability.Logger
}

func (s LogSender) DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error {
	for _, msg := range messages {
		to := ""
		if rcpts := msg.GetTo(); len(rcpts) > 0 {
			to = rcpts[0].Address
		}
		s.Logger.WithFields(map[string]interface{}{
			"to":      to,
			"subject": msg.GetGenHeader(gomail.HeaderSubject),
		}).Info("mail delivery disabled, message not sent")
	}
	return nil
}
