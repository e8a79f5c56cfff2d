package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-bridge/internal/event"
	"order-bridge/internal/model"
	"order-bridge/internal/token"

	"go.uber.org/zap"
)

type PageKind string

const (
	PageDecision PageKind = "decision"
	PageDelivery PageKind = "delivery"
	PageInvalid  PageKind = "invalid"
)

// Page is what the operator sees when opening a verification link. It is
// built from token metadata alone.
type Page struct {
	Kind      PageKind
	TokenID   string
	Details   string
	Context   token.Context
	ExpiresAt time.Time
}

type Result struct {
	Success bool
	Title   string
	Message string
}

var invalidLinkResult = Result{
	Title:   "Link inválido ou expirado",
	Message: "Este link de verificação já foi usado ou expirou. Nenhuma ação foi executada.",
}

type VerificationService interface {
	RequestProofReview(ctx context.Context, details string, tc token.Context) (string, error)
	RequestDeliveryConfirmation(ctx context.Context, details string, tc token.Context) (string, error)
	// RequestTicketProofReview starts review of a receipt posted in a ticket
	// payment channel.
	RequestTicketProofReview(ctx context.Context, channelID, userID, attachmentURL string) (string, error)

	Page(tokenID string) Page
	Apply(ctx context.Context, tokenID, action string) Result

	HandleProofSubmitted(ctx context.Context, e event.Event) error
}

type verificationServiceImpl struct {
	tokens    *token.Store
	notifier  Notifier
	orders    OrderService
	channels  ChannelService
	verifyURL func(tokenID string) string
	logger    *zap.Logger
}

func NewVerificationService(
	tokens *token.Store,
	notifier Notifier,
	orders OrderService,
	channels ChannelService,
	verifyURL func(tokenID string) string,
	logger *zap.Logger,
) VerificationService {
	return &verificationServiceImpl{
		tokens:    tokens,
		notifier:  notifier,
		orders:    orders,
		channels:  channels,
		verifyURL: verifyURL,
		logger:    logger,
	}
}

func (s *verificationServiceImpl) RequestProofReview(ctx context.Context, details string, tc token.Context) (string, error) {
	return s.request(ctx, token.ActionNone, "🔔 **Nova verificação pendente**", details, tc)
}

func (s *verificationServiceImpl) RequestDeliveryConfirmation(ctx context.Context, details string, tc token.Context) (string, error) {
	return s.request(ctx, token.ActionDeliver, "📦 **Confirmar entrega**", details, tc)
}

func (s *verificationServiceImpl) RequestTicketProofReview(ctx context.Context, channelID, userID, attachmentURL string) (string, error) {
	ticket, err := s.channels.PaymentTicket(ctx, channelID)
	if err != nil {
		return "", err
	}
	if ticket.Topic.UserID != userID {
		return "", fmt.Errorf("ticket %s: %w", ticket.Topic.TicketID, model.ErrUnauthorized)
	}

	tc := token.Context{
		Type:        token.ContextTicket,
		OrderID:     ticket.Topic.TicketID,
		ChannelID:   ticket.Channel.ID,
		UserID:      userID,
		ProductID:   ticket.Product.ID,
		ProductName: ticket.Product.Name,
	}
	details := fmt.Sprintf("Ticket `%s`\nUsuário: <@%s>\nProduto: %s (%s)\nComprovante: %s",
		shortID(ticket.Topic.TicketID), userID, ticket.Product.Name, formatPrice(ticket.Product.Price), attachmentURL)

	return s.RequestProofReview(ctx, details, tc)
}

func (s *verificationServiceImpl) Page(tokenID string) Page {
	t, err := s.tokens.Peek(tokenID)
	if err != nil {
		return Page{Kind: PageInvalid, TokenID: tokenID}
	}

	kind := PageDecision
	if t.Action == token.ActionDeliver {
		kind = PageDelivery
	}
	return Page{
		Kind:      kind,
		TokenID:   t.ID,
		Details:   t.Details,
		Context:   t.Context,
		ExpiresAt: t.ExpiresAt,
	}
}

// Apply consumes the token and runs the transition it guards. The token is
// gone before the transition starts, so a repeated submit renders the
// invalid-link result instead of acting twice.
func (s *verificationServiceImpl) Apply(ctx context.Context, tokenID, requested string) Result {
	peeked, err := s.tokens.Peek(tokenID)
	if err != nil {
		return invalidLinkResult
	}

	action, err := resolveAction(peeked.Action, requested)
	if err != nil {
		return Result{Title: "Ação inválida", Message: err.Error()}
	}

	t, err := s.tokens.Resolve(tokenID)
	if err != nil {
		return invalidLinkResult
	}

	logger := s.logger.With(
		zap.String("token_context", string(t.Context.Type)),
		zap.String("order_id", t.Context.OrderID),
		zap.String("action", string(action)),
	)

	switch t.Context.Type {
	case token.ContextSite:
		err = s.applySite(ctx, action, t.Context)
	case token.ContextTicket:
		err = s.applyTicket(ctx, action, t.Context)
	default:
		err = fmt.Errorf("unknown token context %q", t.Context.Type)
	}
	if err != nil {
		logger.Warn("verification action failed", zap.Error(err))
		return failureResult(err)
	}

	logger.Info("verification action applied")
	return successResult(action)
}

func (s *verificationServiceImpl) HandleProofSubmitted(ctx context.Context, e event.Event) error {
	submitted, ok := e.(event.ProofSubmitted)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	order := submitted.Order

	tc := token.Context{
		Type:        token.ContextSite,
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProductID:   order.ProductID,
		ProductName: order.ProductName,
	}
	details := fmt.Sprintf("Pedido do site `%s`\nUsuário: <@%s>\nProduto: %s\nComprovante: %s",
		shortID(order.ID), order.UserID, order.ProductName, order.ReceiptURL)

	_, err := s.RequestProofReview(ctx, details, tc)
	return err
}

func (s *verificationServiceImpl) applySite(ctx context.Context, action token.Action, tc token.Context) error {
	switch action {
	case token.ActionApprove:
		order, err := s.orders.Approve(ctx, tc.OrderID)
		if err != nil {
			return err
		}
		details := fmt.Sprintf("Pedido do site `%s`\nUsuário: <@%s>\nProduto: %s", shortID(order.ID), order.UserID, order.ProductName)
		if _, err := s.RequestDeliveryConfirmation(ctx, details, tc); err != nil {
			s.logger.Error("delivery confirmation request failed", zap.String("order_id", order.ID), zap.Error(err))
		}
		return nil
	case token.ActionReject:
		_, err := s.orders.Reject(ctx, tc.OrderID)
		return err
	case token.ActionDeliver:
		_, err := s.orders.MarkDelivered(ctx, tc.OrderID)
		return err
	}
	return fmt.Errorf("unsupported action %q", action)
}

func (s *verificationServiceImpl) applyTicket(ctx context.Context, action token.Action, tc token.Context) error {
	switch action {
	case token.ActionApprove:
		ticket, err := s.channels.ConfirmTicketPayment(ctx, tc)
		if err != nil {
			return err
		}
		next := tc
		next.ChannelID = ticket.Binding.ID
		details := fmt.Sprintf("Ticket `%s`\nUsuário: <@%s>\nProduto: %s\nCanal de entrega: <#%s>",
			shortID(tc.OrderID), tc.UserID, tc.ProductName, ticket.Channel.ID)
		if _, err := s.RequestDeliveryConfirmation(ctx, details, next); err != nil {
			s.logger.Error("delivery confirmation request failed", zap.String("ticket_id", tc.OrderID), zap.Error(err))
		}
		return nil
	case token.ActionReject:
		return s.channels.RejectTicketPayment(ctx, tc)
	case token.ActionDeliver:
		return s.channels.DeliverTicket(ctx, tc)
	}
	return fmt.Errorf("unsupported action %q", action)
}

func (s *verificationServiceImpl) request(ctx context.Context, action token.Action, heading, details string, tc token.Context) (string, error) {
	id, err := s.tokens.Issue(action, tc, details)
	if err != nil {
		return "", fmt.Errorf("issue verification token: %w", err)
	}

	content := fmt.Sprintf("%s\n%s\n🔗 %s", heading, details, s.verifyURL(id))
	if err := s.notifier.NotifyOperator(ctx, content); err != nil {
		// the token stays valid; the operator can still be handed the link
		s.logger.Error("operator notification failed",
			zap.String("order_id", tc.OrderID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}

	s.logger.Info("verification requested",
		zap.String("order_id", tc.OrderID),
		zap.String("token_context", string(tc.Type)),
		zap.String("action", string(action)),
	)
	return id, nil
}

// resolveAction checks the submitted action against the token. A preset
// action wins; otherwise the operator must choose approve or reject.
func resolveAction(preset token.Action, requested string) (token.Action, error) {
	if preset != token.ActionNone {
		if requested != "" && token.Action(requested) != preset {
			return "", fmt.Errorf("este link só permite a ação %q", preset)
		}
		return preset, nil
	}

	action, err := token.ParseAction(requested)
	if err != nil || action == token.ActionDeliver {
		return "", errors.New("escolha aprovar ou recusar")
	}
	return action, nil
}

func successResult(action token.Action) Result {
	switch action {
	case token.ActionApprove:
		return Result{Success: true, Title: "Pagamento aprovado", Message: "O pedido foi aprovado e o cliente foi avisado."}
	case token.ActionReject:
		return Result{Success: true, Title: "Pagamento recusado", Message: "O pedido foi recusado e o cliente foi avisado."}
	default:
		return Result{Success: true, Title: "Entrega confirmada", Message: "O pedido foi marcado como entregue."}
	}
}

func failureResult(err error) Result {
	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		return Result{Title: "Pedido já processado", Message: "O pedido não está mais no status esperado. Nenhuma alteração foi feita."}
	case errors.Is(err, model.ErrNotFound):
		return Result{Title: "Não encontrado", Message: "O pedido ou canal desta verificação não existe mais."}
	case errors.Is(err, model.ErrMalformedTopic):
		return Result{Title: "Canal inválido", Message: "Os dados do canal não conferem com esta verificação."}
	default:
		return Result{Title: "Falha ao aplicar ação", Message: "Ocorreu um erro ao processar a verificação. Verifique os logs."}
	}
}
