package notification

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/clock"
	obsmetrics "github.com/fenuasim/portal/internal/observability/metrics"
	"github.com/fenuasim/portal/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed templates/*.html
var templateFS embed.FS

const activationSubject = "Your eSIM is ready"

// ActivationData feeds the activation email template.
type ActivationData struct {
	ICCID           string
	QRCodeURL       string
	AppleInstallURL string
	DataBalance     string
}

type Params struct {
	fx.In

	Log     *zap.Logger
	DB      *gorm.DB
	Emails  email.Provider
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	db        *gorm.DB
	emails    email.Provider
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
	templates *template.Template
}

func NewService(p Params) (*Service, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Service{
		log:       p.Log.Named("notification.service"),
		db:        p.DB,
		emails:    p.Emails,
		genID:     p.GenID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		templates: templates,
	}, nil
}

// SendActivation emails the activation instructions and archives the
// attempt. The returned error reports dispatch failure; the archive row
// is written either way.
func (s *Service) SendActivation(ctx context.Context, orderID snowflake.ID, recipient string, data ActivationData) error {
	body, err := s.render("esim_activation.html", data)
	if err != nil {
		return err
	}

	sendErr := s.emails.Send(ctx, []string{recipient}, activationSubject, body)
	s.archive(ctx, &orderID, recipient, activationSubject, sendErr)

	if sendErr != nil {
		s.log.Warn("activation email failed",
			zap.String("order_id", orderID.String()),
			zap.Error(sendErr),
		)
		if s.metrics != nil {
			s.metrics.RecordEmailSent(ctx, StatusFailed)
		}
		return sendErr
	}

	if s.metrics != nil {
		s.metrics.RecordEmailSent(ctx, StatusSent)
	}
	return nil
}

func (s *Service) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) archive(ctx context.Context, orderID *snowflake.ID, recipient, subject string, sendErr error) {
	record := &SentEmail{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Recipient: recipient,
		Subject:   subject,
		Status:    StatusSent,
		CreatedAt: s.clock.Now(),
	}
	if sendErr != nil {
		record.Status = StatusFailed
		record.ErrorMessage = sendErr.Error()
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.log.Warn("sent email archive failed", zap.Error(err))
	}
}
