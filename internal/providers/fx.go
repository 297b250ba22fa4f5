package providers

import (
	"github.com/smallbiznis/boqledger/internal/providers/email"
	"github.com/smallbiznis/boqledger/internal/providers/pdf"
	"github.com/smallbiznis/boqledger/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
	pdf.Module,
)
