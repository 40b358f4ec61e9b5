package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dscengine/crypto"
	"dscengine/native/stablecoin"
	"dscengine/services/stabled/app"
	"dscengine/services/stabled/audit"
	"dscengine/services/stabled/middleware"
)

const (
	ScopeWrite  = "stablecoin:write"
	ScopeOracle = "oracle:write"
	ScopeAdmin  = "stablecoin:admin"

	maxBodyBytes = 1 << 16
)

// Config wires the HTTP surface to the daemon components. Authenticator,
// RateLimiter, Observability and Journal are optional.
type Config struct {
	App           *app.App
	Journal       *audit.Journal
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
}

type Server struct {
	app     *app.App
	journal *audit.Journal
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	logger  *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	return &Server{
		app:     cfg.App,
		journal: cfg.Journal,
		auth:    auth,
		limiter: cfg.RateLimiter,
		obs:     cfg.Observability,
		logger:  logger,
	}, nil
}

// Handler returns the chi router serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		s.handle(v1, http.MethodGet, "/params", "params", s.handleParams)
		s.handle(v1, http.MethodGet, "/collateral", "collateral", s.handleCollateral)
		s.handle(v1, http.MethodGet, "/totals", "totals", s.handleTotals)
		s.handle(v1, http.MethodGet, "/accounts/{address}", "account", s.handleAccount)
		s.handle(v1, http.MethodGet, "/assets/{asset}/usd-value", "usd_value", s.handleUsdValue)
		s.handle(v1, http.MethodGet, "/assets/{asset}/token-amount", "token_amount", s.handleTokenAmount)
		s.handle(v1, http.MethodGet, "/tokens/{asset}/balances/{address}", "token_balance", s.handleTokenBalance)
		s.handle(v1, http.MethodGet, "/audit", "audit", s.handleAudit)

		v1.Group(func(w chi.Router) {
			w.Use(s.auth.Middleware(ScopeWrite))
			if s.limiter != nil {
				w.Use(s.limiter.Middleware())
			}
			s.handle(w, http.MethodPost, "/deposit", "deposit", s.handleDeposit)
			s.handle(w, http.MethodPost, "/mint", "mint", s.handleMint)
			s.handle(w, http.MethodPost, "/deposit-and-mint", "deposit_and_mint", s.handleDepositAndMint)
			s.handle(w, http.MethodPost, "/redeem", "redeem", s.handleRedeem)
			s.handle(w, http.MethodPost, "/redeem-for-dsc", "redeem_for_dsc", s.handleRedeemForDsc)
			s.handle(w, http.MethodPost, "/burn", "burn", s.handleBurn)
			s.handle(w, http.MethodPost, "/liquidate", "liquidate", s.handleLiquidate)
			s.handle(w, http.MethodPost, "/tokens/approve", "approve", s.handleApprove)
		})
		v1.Group(func(o chi.Router) {
			o.Use(s.auth.Middleware(ScopeOracle))
			s.handle(o, http.MethodPost, "/oracle/rounds", "oracle_round", s.handleSubmitRound)
		})
		v1.Group(func(a chi.Router) {
			a.Use(s.auth.Middleware(ScopeAdmin))
			s.handle(a, http.MethodPost, "/admin/faucet", "faucet", s.handleFaucet)
			s.handle(a, http.MethodPost, "/admin/pause", "pause", s.handlePause)
		})
	})
	return r
}

func (s *Server) handle(r chi.Router, method, pattern, route string, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if s.obs != nil {
		handler = s.obs.Middleware(route)(handler)
	}
	r.Method(method, pattern, handler)
}

type operationRequest struct {
	Asset       crypto.Address `json:"asset"`
	Account     crypto.Address `json:"account"`
	To          crypto.Address `json:"to"`
	Feed        crypto.Address `json:"feed"`
	Amount      string         `json:"amount"`
	DscAmount   string         `json:"dscAmount"`
	DebtToCover string         `json:"debtToCover"`
	Answer      string         `json:"answer"`
	Paused      *bool          `json:"paused"`
}

func decodeRequest(r *http.Request) (*operationRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	req := new(operationRequest)
	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, raw)
	}
	return value, nil
}

func parseAmounts(raws ...string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(raws))
	for _, raw := range raws {
		value, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

func caller(r *http.Request) (crypto.Address, error) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		return crypto.Address{}, errMissingCaller
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: subject is not an address: %v", errMissingCaller, err)
	}
	return addr, nil
}

func pathAddress(r *http.Request, param string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, param))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errInvalidAddress, param, err)
	}
	return addr, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := toStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// operation runs fn on behalf of the authenticated caller, whose subject must
// be an account address.
func (s *Server) operation(w http.ResponseWriter, r *http.Request, fn func(caller crypto.Address, req *operationRequest) (any, error)) {
	from, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.serviceOperation(w, r, func(_ string, req *operationRequest) (any, error) {
		return fn(from, req)
	})
}

// serviceOperation runs fn for any authenticated subject, such as a price
// reporter or an operator.
func (s *Server) serviceOperation(w http.ResponseWriter, r *http.Request, fn func(subject string, req *operationRequest) (any, error)) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		s.writeError(w, r, errMissingCaller)
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, decodeError{err})
		return
	}
	result, err := fn(subject, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		result = map[string]string{"status": "ok"}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.DepositCollateral(r.Context(), from, req.Asset, amount)
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.MintDsc(r.Context(), from, amount)
	})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amounts, err := parseAmounts(req.Amount, req.DscAmount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.DepositCollateralAndMintDsc(r.Context(), from, req.Asset, amounts[0], amounts[1])
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.RedeemCollateral(r.Context(), from, req.Asset, amount)
	})
}

func (s *Server) handleRedeemForDsc(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amounts, err := parseAmounts(req.Amount, req.DscAmount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.RedeemCollateralForDsc(r.Context(), from, req.Asset, amounts[0], amounts[1])
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Engine.BurnDsc(r.Context(), from, amount)
	})
}

type liquidationResponse struct {
	DebtCovered      string `json:"debtCovered"`
	CollateralSeized string `json:"collateralSeized"`
	Bonus            string `json:"bonus"`
	StartingHealth   string `json:"startingHealthFactor"`
	EndingHealth     string `json:"endingHealthFactor"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		debt, err := parseAmount(req.DebtToCover)
		if err != nil {
			return nil, err
		}
		result, err := s.app.Engine.Liquidate(r.Context(), from, req.Asset, req.Account, debt)
		if err != nil {
			return nil, err
		}
		return liquidationResponse{
			DebtCovered:      result.DebtCovered.String(),
			CollateralSeized: result.CollateralSeized.String(),
			Bonus:            result.Bonus.String(),
			StartingHealth:   result.StartingHealth.String(),
			EndingHealth:     result.EndingHealth.String(),
		}, nil
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.operation(w, r, func(from crypto.Address, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		spender := s.app.Collateral.Custody()
		if err := s.app.Ledger.Approve(req.Asset, from, spender, amount); err != nil {
			return nil, err
		}
		return map[string]string{"spender": spender.String(), "amount": amount.String()}, nil
	})
}

type roundResponse struct {
	Feed      crypto.Address `json:"feed"`
	RoundID   uint64         `json:"roundId"`
	Answer    string         `json:"answer"`
	Decimals  uint8          `json:"decimals"`
	UpdatedAt int64          `json:"updatedAt"`
}

func (s *Server) handleSubmitRound(w http.ResponseWriter, r *http.Request) {
	s.serviceOperation(w, r, func(_ string, req *operationRequest) (any, error) {
		answer, err := parseAmount(req.Answer)
		if err != nil {
			return nil, err
		}
		round, err := s.app.Prices.Submit(r.Context(), req.Feed, answer)
		if err != nil {
			return nil, err
		}
		return roundResponse{
			Feed:      req.Feed,
			RoundID:   round.RoundID,
			Answer:    round.Answer.String(),
			Decimals:  round.Decimals,
			UpdatedAt: round.UpdatedAt.Unix(),
		}, nil
	})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	s.serviceOperation(w, r, func(_ string, req *operationRequest) (any, error) {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, s.app.Faucet(req.Asset, req.To, amount)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.serviceOperation(w, r, func(operator string, req *operationRequest) (any, error) {
		if req.Paused == nil {
			return nil, decodeError{errors.New("paused flag required")}
		}
		s.app.Pauses.Set(stablecoin.ModuleName, *req.Paused)
		s.logger.Info("stablecoin pause toggled", "paused", *req.Paused, "operator", operator)
		return map[string]bool{"paused": *req.Paused}, nil
	})
}

type paramsResponse struct {
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps     uint64 `json:"liquidationBonusBps"`
	MinHealthFactor         string `json:"minHealthFactor"`
	OracleTimeoutSeconds    int64  `json:"oracleTimeoutSeconds"`
	LiabilityToken          string `json:"liabilityToken"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params := s.app.Engine.Params()
	writeJSON(w, http.StatusOK, paramsResponse{
		LiquidationThresholdBps: params.LiquidationThresholdBps,
		LiquidationBonusBps:     params.LiquidationBonusBps,
		MinHealthFactor:         params.MinHealthFactor.String(),
		OracleTimeoutSeconds:    int64(params.OracleTimeout.Seconds()),
		LiabilityToken:          s.app.Liability.Asset().String(),
	})
}

type collateralResponse struct {
	Label    string         `json:"label"`
	Symbol   string         `json:"symbol"`
	Asset    crypto.Address `json:"asset"`
	Feed     crypto.Address `json:"feed"`
	Decimals uint8          `json:"decimals"`
}

func (s *Server) handleCollateral(w http.ResponseWriter, r *http.Request) {
	list := s.app.CollateralList()
	out := make([]collateralResponse, 0, len(list))
	for _, entry := range list {
		out = append(out, collateralResponse{
			Label:    entry.Label,
			Symbol:   entry.Symbol,
			Asset:    entry.Asset,
			Feed:     entry.Feed,
			Decimals: entry.Decimals,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type balanceResponse struct {
	Asset  crypto.Address `json:"asset"`
	Amount string         `json:"amount"`
}

type totalsResponse struct {
	TotalDebt  string            `json:"totalDebt"`
	Collateral []balanceResponse `json:"collateral"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	debt, err := s.app.Engine.TotalDebt(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := totalsResponse{TotalDebt: debt.String()}
	for _, asset := range s.app.Engine.CollateralTokens() {
		amount, err := s.app.Engine.TotalCollateral(ctx, asset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Collateral = append(resp.Collateral, balanceResponse{Asset: asset, Amount: amount.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

type accountResponse struct {
	Address       crypto.Address    `json:"address"`
	TotalDebt     string            `json:"totalDebt"`
	CollateralUSD string            `json:"collateralUsd"`
	HealthFactor  string            `json:"healthFactor"`
	Collateral    []balanceResponse `json:"collateral"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.app.Engine.GetAccountSummary(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := accountResponse{
		Address:       addr,
		TotalDebt:     summary.TotalDebt.String(),
		CollateralUSD: summary.CollateralUSD.String(),
		HealthFactor:  summary.HealthFactor.String(),
		Collateral:    make([]balanceResponse, 0, len(summary.Collateral)),
	}
	for _, balance := range summary.Collateral {
		resp.Collateral = append(resp.Collateral, balanceResponse{Asset: balance.Asset, Amount: balance.Amount.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usd, err := s.app.Engine.GetUsdValue(r.Context(), asset, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset.String(), "amount": amount.String(), "usd": usd.String()})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usd, err := parseAmount(r.URL.Query().Get("usd"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := s.app.Engine.GetTokenAmountFromUsd(r.Context(), asset, usd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset.String(), "usd": usd.String(), "amount": amount.String()})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.app.Ledger.Balance(asset, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Asset: asset, Amount: balance.String()})
}

type auditResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit journal disabled"})
		return
	}
	query := r.URL.Query()
	filter := audit.Filter{Account: query.Get("account"), Type: query.Get("type")}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]auditResponse, 0, len(records))
	for _, record := range records {
		attrs, err := record.AttributeMap()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, auditResponse{
			ID:         record.ID.String(),
			Type:       record.Type,
			Account:    record.Account,
			Attributes: attrs,
			CreatedAt:  record.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
