//go:build protogen

package crm

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/glowbook-hq/glowbook/libs/grpcx"
	crmv1 "github.com/glowbook-hq/glowbook/protos/gen/crm/v1"
)

type grpcProvider struct {
	client crmv1.CrmServiceClient
}

func NewProvider(logger *slog.Logger, addr string) (Provider, error) {
	if addr == "" {
		return NoopProvider{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("crm provider unavailable, contacts will be discarded", "err", err)
		return NoopProvider{}, nil
	}

	logger.Info("crm provider enabled", "addr", addr)
	return &grpcProvider{client: crmv1.NewCrmServiceClient(conn)}, nil
}

func (p *grpcProvider) PushContact(ctx context.Context, c Contact) error {
	_, err := p.client.UpsertContact(ctx, &crmv1.UpsertContactRequest{
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		ServiceId:     c.ServiceID,
		AppointmentId: c.AppointmentID,
		AppointmentAt: timestamppb.New(c.AppointmentAt),
	})
	return err
}
