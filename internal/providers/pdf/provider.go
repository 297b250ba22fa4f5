package pdf

import (
	"context"
	"errors"
)

// ErrDisabled is returned by NoOpProvider.
var ErrDisabled = errors.New("pdf rendering is disabled")

type Provider interface {
	RenderCertificate(ctx context.Context, doc CertificateDocument) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderCertificate(ctx context.Context, doc CertificateDocument) ([]byte, error) {
	return nil, ErrDisabled
}
