package recharge

import (
	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/recharge/repository"
	"github.com/stemforge/stemforge/internal/recharge/service"
	"github.com/stemforge/stemforge/internal/recharge/stripe"
	"github.com/stemforge/stemforge/internal/recharge/wechat"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("recharge",
	fx.Provide(repository.Provide),
	fx.Provide(NewStripeClient),
	fx.Provide(stripe.NewCatalogHolder),
	fx.Provide(NewWeChatClient),
	fx.Provide(service.NewService),
)

func NewStripeClient(cfg config.Config, log *zap.Logger) *stripe.Client {
	return stripe.NewClient(cfg.Stripe, log)
}

func NewWeChatClient(cfg config.Config, log *zap.Logger) *wechat.Client {
	return wechat.NewClient(cfg.WeChat, log)
}
