package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCertificate(t *testing.T) {
	out, err := New().RenderCertificate(context.Background(), CertificateDocument{
		Number:       "PC/00001",
		Date:         "2025-03-01",
		Status:       "submitted",
		BoqName:      "BOQ/00001",
		CustomerName: "PT Maju",
		Currency:     "IDR",
		Rows: []CertificateRow{
			{Description: "Concrete", CompletionPercent: 40, ApprovedPercent: 40, QtyApproved: 4, UnitPrice: 110, AmountApproved: 440},
		},
		AmountCompleted: 440,
		AmountApproved:  440,
		RetentionLabel:  "RET 5%",
		AmountRetention: 22,
		AmountInvoice:   418,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestAmountFormatting(t *testing.T) {
	assert.Equal(t, "1234.50", Amount(1234.5))
	assert.Equal(t, "-22.00", Amount(-22))
	assert.Equal(t, "40.0%", percent(40))
}

func TestNoOpProvider(t *testing.T) {
	_, err := (&NoOpProvider{}).RenderCertificate(context.Background(), CertificateDocument{})
	assert.ErrorIs(t, err, ErrDisabled)
}
