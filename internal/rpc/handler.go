// Package rpc exposes the ledger engine as Connect procedures.
package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/service"
)

// ServiceName is the fully-qualified name of the ledger service.
const ServiceName = "settleup.v1.LedgerService"

// Procedure paths.
const (
	CreateMemberProcedure       = "/" + ServiceName + "/CreateMember"
	CreateGroupProcedure        = "/" + ServiceName + "/CreateGroup"
	GetGroupProcedure           = "/" + ServiceName + "/GetGroup"
	CreateExpenseProcedure      = "/" + ServiceName + "/CreateExpense"
	GetExpenseProcedure         = "/" + ServiceName + "/GetExpense"
	ListExpensesProcedure       = "/" + ServiceName + "/ListExpenses"
	UpdateExpenseProcedure      = "/" + ServiceName + "/UpdateExpense"
	DeleteExpenseProcedure      = "/" + ServiceName + "/DeleteExpense"
	GetNetBalanceProcedure      = "/" + ServiceName + "/GetNetBalance"
	GetPairwiseNetProcedure     = "/" + ServiceName + "/GetPairwiseNet"
	GetMemberSummaryProcedure   = "/" + ServiceName + "/GetMemberSummary"
	GetMemberPositionsProcedure = "/" + ServiceName + "/GetMemberPositions"
	SettleProcedure             = "/" + ServiceName + "/Settle"
	ListSettlementsProcedure    = "/" + ServiceName + "/ListSettlements"
	SuggestPairwiseProcedure    = "/" + ServiceName + "/SuggestPairwise"
	SuggestMinimalProcedure     = "/" + ServiceName + "/SuggestMinimal"
)

// Config wires a ledger handler.
type Config struct {
	JWT *auth.JWTManager

	// Interceptors wrap every procedure, outermost first.
	Interceptors []connect.Interceptor

	// CallerInterceptors run once the caller is known: after authentication
	// on protected procedures, directly on public ones.
	CallerInterceptors []connect.Interceptor
}

type ledgerServer struct {
	svc *service.LedgerService
	jwt *auth.JWTManager
}

// NewLedgerHandler builds an HTTP handler serving every ledger procedure.
// It returns the path prefix to mount it on. CreateMember is public; every
// other procedure requires a bearer token.
func NewLedgerHandler(svc *service.LedgerService, cfg Config) (string, http.Handler) {
	s := &ledgerServer{svc: svc, jwt: cfg.JWT}

	var public, protected []connect.Interceptor
	public = append(public, cfg.Interceptors...)
	public = append(public, cfg.CallerInterceptors...)
	protected = append(protected, cfg.Interceptors...)
	protected = append(protected, middleware.RequireAuth(cfg.JWT))
	protected = append(protected, cfg.CallerInterceptors...)

	publicOpts := []connect.HandlerOption{connect.WithCodec(jsonCodec{}), connect.WithInterceptors(public...)}
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{}), connect.WithInterceptors(protected...)}

	mux := http.NewServeMux()
	mux.Handle(CreateMemberProcedure, connect.NewUnaryHandler(CreateMemberProcedure, s.CreateMember, publicOpts...))
	mux.Handle(CreateGroupProcedure, connect.NewUnaryHandler(CreateGroupProcedure, s.CreateGroup, opts...))
	mux.Handle(GetGroupProcedure, connect.NewUnaryHandler(GetGroupProcedure, s.GetGroup, opts...))
	mux.Handle(CreateExpenseProcedure, connect.NewUnaryHandler(CreateExpenseProcedure, s.CreateExpense, opts...))
	mux.Handle(GetExpenseProcedure, connect.NewUnaryHandler(GetExpenseProcedure, s.GetExpense, opts...))
	mux.Handle(ListExpensesProcedure, connect.NewUnaryHandler(ListExpensesProcedure, s.ListExpenses, opts...))
	mux.Handle(UpdateExpenseProcedure, connect.NewUnaryHandler(UpdateExpenseProcedure, s.UpdateExpense, opts...))
	mux.Handle(DeleteExpenseProcedure, connect.NewUnaryHandler(DeleteExpenseProcedure, s.DeleteExpense, opts...))
	mux.Handle(GetNetBalanceProcedure, connect.NewUnaryHandler(GetNetBalanceProcedure, s.GetNetBalance, opts...))
	mux.Handle(GetPairwiseNetProcedure, connect.NewUnaryHandler(GetPairwiseNetProcedure, s.GetPairwiseNet, opts...))
	mux.Handle(GetMemberSummaryProcedure, connect.NewUnaryHandler(GetMemberSummaryProcedure, s.GetMemberSummary, opts...))
	mux.Handle(GetMemberPositionsProcedure, connect.NewUnaryHandler(GetMemberPositionsProcedure, s.GetMemberPositions, opts...))
	mux.Handle(SettleProcedure, connect.NewUnaryHandler(SettleProcedure, s.Settle, opts...))
	mux.Handle(ListSettlementsProcedure, connect.NewUnaryHandler(ListSettlementsProcedure, s.ListSettlements, opts...))
	mux.Handle(SuggestPairwiseProcedure, connect.NewUnaryHandler(SuggestPairwiseProcedure, s.SuggestPairwise, opts...))
	mux.Handle(SuggestMinimalProcedure, connect.NewUnaryHandler(SuggestMinimalProcedure, s.SuggestMinimal, opts...))

	return "/" + ServiceName + "/", mux
}

// CreateMember registers a member and issues their first token.
func (s *ledgerServer) CreateMember(ctx context.Context, req *connect.Request[CreateMemberRequest]) (*connect.Response[CreateMemberResponse], error) {
	member, err := s.svc.CreateMember(ctx, req.Msg.DisplayName)
	if err != nil {
		return nil, toConnectError(err)
	}
	token, err := s.jwt.Generate(member.ID, member.DisplayName)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CreateMemberResponse{Member: member, Token: token}), nil
}

func (s *ledgerServer) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	caller := middleware.GetMemberID(ctx)
	if !contains(req.Msg.MemberIDs, caller) {
		return nil, toConnectError(&models.PermissionError{MemberID: caller, Action: "create a group without joining it"})
	}
	group, err := s.svc.CreateGroup(ctx, req.Msg.Name, req.Msg.MemberIDs)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

func (s *ledgerServer) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	group, err := s.authorizeGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

func (s *ledgerServer) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	paidBy := req.Msg.PaidBy
	if paidBy == "" {
		paidBy = middleware.GetMemberID(ctx)
	}
	expense, err := s.svc.CreateExpense(ctx, service.CreateExpenseRequest{
		GroupID:      req.Msg.GroupID,
		PaidBy:       paidBy,
		Amount:       req.Msg.Amount,
		Policy:       req.Msg.SplitPolicy,
		Description:  req.Msg.Description,
		Category:     req.Msg.Category,
		Participants: req.Msg.Participants,
		Shares:       req.Msg.Shares,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: expense}), nil
}

func (s *ledgerServer) GetExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	expense, err := s.svc.GetExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if _, err := s.authorizeGroup(ctx, expense.GroupID); err != nil {
		return nil, err
	}
	return connect.NewResponse(&ExpenseResponse{Expense: expense}), nil
}

func (s *ledgerServer) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	expenses, err := s.svc.ListExpenses(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: expenses}), nil
}

func (s *ledgerServer) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	expense, err := s.svc.UpdateExpenseDetails(ctx, middleware.GetMemberID(ctx), req.Msg.ExpenseID, req.Msg.Description, req.Msg.Category)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExpenseResponse{Expense: expense}), nil
}

func (s *ledgerServer) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	if err := s.svc.DeleteExpense(ctx, middleware.GetMemberID(ctx), req.Msg.ExpenseID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

func (s *ledgerServer) GetNetBalance(ctx context.Context, req *connect.Request[NetBalanceRequest]) (*connect.Response[NetBalanceResponse], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	memberID := orCaller(ctx, req.Msg.MemberID)
	net, err := s.svc.NetBalance(ctx, req.Msg.GroupID, memberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&NetBalanceResponse{MemberID: memberID, Net: net}), nil
}

func (s *ledgerServer) GetPairwiseNet(ctx context.Context, req *connect.Request[PairwiseNetRequest]) (*connect.Response[PairwiseNetResponse], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	a := orCaller(ctx, req.Msg.A)
	net, err := s.svc.PairwiseNet(ctx, req.Msg.GroupID, a, req.Msg.B)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PairwiseNetResponse{A: a, B: req.Msg.B, Net: net}), nil
}

func (s *ledgerServer) GetMemberSummary(ctx context.Context, req *connect.Request[MemberRequest]) (*connect.Response[service.MemberSummary], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	summary, err := s.svc.MemberSummary(ctx, req.Msg.GroupID, orCaller(ctx, req.Msg.MemberID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(summary), nil
}

func (s *ledgerServer) GetMemberPositions(ctx context.Context, req *connect.Request[MemberRequest]) (*connect.Response[service.MemberPositions], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	positions, err := s.svc.MemberPositions(ctx, req.Msg.GroupID, orCaller(ctx, req.Msg.MemberID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(positions), nil
}

// Settle records that the caller paid To their full pairwise net.
func (s *ledgerServer) Settle(ctx context.Context, req *connect.Request[SettleRequest]) (*connect.Response[service.SettleResult], error) {
	result, err := s.svc.Settle(ctx, service.SettleRequest{
		GroupID: req.Msg.GroupID,
		From:    middleware.GetMemberID(ctx),
		To:      req.Msg.To,
		Amount:  req.Msg.Amount,
		Notes:   req.Msg.Notes,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(result), nil
}

func (s *ledgerServer) ListSettlements(ctx context.Context, req *connect.Request[ListSettlementsRequest]) (*connect.Response[ListSettlementsResponse], error) {
	if _, err := s.authorizeGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, err
	}
	settlements, err := s.svc.ListSettlements(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListSettlementsResponse{Settlements: settlements}), nil
}

func (s *ledgerServer) SuggestPairwise(ctx context.Context, req *connect.Request[SuggestRequest]) (*connect.Response[SuggestResponse], error) {
	return s.suggest(ctx, req.Msg.GroupID, s.svc.SuggestPairwise)
}

func (s *ledgerServer) SuggestMinimal(ctx context.Context, req *connect.Request[SuggestRequest]) (*connect.Response[SuggestResponse], error) {
	return s.suggest(ctx, req.Msg.GroupID, s.svc.SuggestMinimal)
}

func (s *ledgerServer) suggest(ctx context.Context, groupID string, fn func(context.Context, string) ([]calculator.Transfer, error)) (*connect.Response[SuggestResponse], error) {
	if _, err := s.authorizeGroup(ctx, groupID); err != nil {
		return nil, err
	}
	transfers, err := fn(ctx, groupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SuggestResponse{Transfers: transfers}), nil
}

// authorizeGroup loads the group and checks the caller is on its roster.
func (s *ledgerServer) authorizeGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, err := s.svc.GetGroup(ctx, groupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	caller := middleware.GetMemberID(ctx)
	if !group.HasMember(caller) {
		return nil, toConnectError(&models.PermissionError{MemberID: caller, Action: "access group " + groupID})
	}
	return group, nil
}

func orCaller(ctx context.Context, memberID string) string {
	if memberID != "" {
		return memberID
	}
	return middleware.GetMemberID(ctx)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
