package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sales-engine/internal/domain"

	"go.uber.org/zap"
)

// SupervisorRole is the directory role flag the dispatcher looks for when
// resolving a delivery token.
const SupervisorRole = "supervisor"

// RecipientDirectory resolves notification recipients by role.
type RecipientDirectory interface {
	ActiveRecipientByRole(ctx context.Context, role string) (*domain.Recipient, error)
}

// SaleNotice carries what the supervisor push message is composed from.
type SaleNotice struct {
	SellerName     string
	RouteName      string
	ClientName     string
	Total          float64
	ClientImageRef string
	SaleRef        string
}

// Dispatcher posts best-effort awareness pushes. It is fully decoupled
// from sale success: every failure here is logged and swallowed, never
// affecting sale state.
type Dispatcher struct {
	endpoint   string
	directory  RecipientDirectory
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(endpoint string, directory RecipientDirectory, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		endpoint:  endpoint,
		directory: directory,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// pushPayload is the request body of the push notification endpoint.
type pushPayload struct {
	Token   string `json:"token"`
	Titulo  string `json:"titulo"`
	Mensaje string `json:"mensaje"`
	Imagen  string `json:"imagen,omitempty"`
	Estilo  string `json:"estilo,omitempty"`
	VentaID string `json:"ventaId,omitempty"`
}

// NotifySupervisor resolves an active supervisor record, extracts its
// delivery token, and posts the sale message. The returned error exists
// for observability only; callers ignore it.
func (d *Dispatcher) NotifySupervisor(ctx context.Context, notice SaleNotice) error {
	recipient, err := d.directory.ActiveRecipientByRole(ctx, SupervisorRole)
	if err != nil {
		d.logger.Warn("No supervisor recipient for sale notification", zap.Error(err))
		return err
	}
	if recipient.PushToken == "" {
		d.logger.Warn("Supervisor recipient has no push token",
			zap.String("recipient_id", recipient.ID),
		)
		return fmt.Errorf("recipient %s has no push token", recipient.ID)
	}

	payload := pushPayload{
		Token:   recipient.PushToken,
		Titulo:  fmt.Sprintf("Nueva venta de %s", notice.SellerName),
		Mensaje: fmt.Sprintf("%s vendió $%.2f a %s en la ruta %s", notice.SellerName, notice.Total, notice.ClientName, notice.RouteName),
		Imagen:  notice.ClientImageRef,
		Estilo:  "bigPicture",
		VentaID: notice.SaleRef,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn("Failed to marshal push payload", zap.Error(err))
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("Failed to build push request", zap.Error(err))
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("Failed to send push notification", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("Push endpoint rejected notification",
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	d.logger.Info("Supervisor notified",
		zap.String("recipient_id", recipient.ID),
		zap.String("sale_ref", notice.SaleRef),
	)
	return nil
}
