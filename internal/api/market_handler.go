package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/token"
)

// CreateMarketRequest is the request to create a new market
type CreateMarketRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TeamName    string `json:"team_name"`
}

func (r CreateMarketRequest) metadata() market.ProjectMetadata {
	return market.ProjectMetadata{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		TeamName:    r.TeamName,
	}
}

// BatchCreateMarketsRequest creates several markets at once
type BatchCreateMarketsRequest struct {
	Projects []CreateMarketRequest `json:"projects"`
}

// OddsResponse is a market's YES probability
type OddsResponse struct {
	Market  common.Address `json:"market"`
	Odds    uint64         `json:"odds"`
	OddsBps uint64         `json:"odds_bps"`
	YesPool uint64         `json:"yes_pool"`
	NoPool  uint64         `json:"no_pool"`
}

func oddsView(snap market.Snapshot) OddsResponse {
	return OddsResponse{
		Market:  snap.Address,
		Odds:    snap.Odds,
		OddsBps: snap.OddsBps,
		YesPool: snap.YesPool,
		NoPool:  snap.NoPool,
	}
}

// QuoteResponse previews a purchase
type QuoteResponse struct {
	Market        common.Address   `json:"market"`
	Side          engine.OutcomeID `json:"side"`
	Amount        uint64           `json:"amount"`
	Shares        uint64           `json:"shares"`
	SharesDisplay string           `json:"shares_display"`
	OddsAfter     uint64           `json:"odds_after"`
}

// SharesResponse is an account's holdings in one market
type SharesResponse struct {
	Market    common.Address `json:"market"`
	Account   common.Address `json:"account"`
	YesShares uint64         `json:"yes_shares"`
	NoShares  uint64         `json:"no_shares"`
}

// handleListMarkets handles GET /api/markets?sort=odds|volume|newest
func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.factory.GetAllMarkets()
	snaps := make([]market.Snapshot, 0, len(markets))
	for _, m := range markets {
		snaps = append(snaps, m.Snapshot())
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := snaps[:0]
		for _, snap := range snaps {
			if snap.Status == status {
				filtered = append(filtered, snap)
			}
		}
		snaps = filtered
	}

	switch r.URL.Query().Get("sort") {
	case "", "created":
	case "odds":
		sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].OddsBps > snaps[j].OddsBps })
	case "volume":
		sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].TotalVolume > snaps[j].TotalVolume })
	case "newest":
		// creation order is oldest first, and a batch shares one timestamp
		for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
			snaps[i], snaps[j] = snaps[j], snaps[i]
		}
	default:
		writeError(w, http.StatusBadRequest, "sort must be odds, volume or newest")
		return
	}

	writeJSON(w, http.StatusOK, snaps)
}

// handleMarketCount handles GET /api/markets/count
func (s *Server) handleMarketCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.factory.GetMarketCount()})
}

// handleMarketByIndex handles GET /api/markets/index/{index}
func (s *Server) handleMarketByIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	mkt, err := s.factory.GetMarket(index)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mkt.Snapshot())
}

// handleCreateMarket handles POST /api/markets
func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req CreateMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mkt, err := s.factory.CreateMarket(caller, req.metadata())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mkt.Snapshot())
}

// handleBatchCreateMarkets handles POST /api/markets/batch
func (s *Server) handleBatchCreateMarkets(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req BatchCreateMarketsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	metas := make([]market.ProjectMetadata, len(req.Projects))
	for i, p := range req.Projects {
		metas[i] = p.metadata()
	}

	markets, err := s.factory.BatchCreateMarkets(caller, metas)
	if err != nil {
		writeErr(w, err)
		return
	}

	snaps := make([]market.Snapshot, len(markets))
	for i, m := range markets {
		snaps[i] = m.Snapshot()
	}
	writeJSON(w, http.StatusCreated, snaps)
}

// handleGetMarket handles GET /api/market/{address}
func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mkt.Snapshot())
}

// handleGetMetadata handles GET /api/market/{address}/metadata
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeErr(w, err)
		return
	}

	meta, err := s.factory.GetProjectMetadata(addr)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleGetOdds handles GET /api/market/{address}/odds
func (s *Server) handleGetOdds(w http.ResponseWriter, r *http.Request) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, oddsView(mkt.Snapshot()))
}

// handleQuote handles GET /api/market/{address}/quote?side=YES&amount=12.5
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	side, amount, err := parseSideAmount(r.URL.Query().Get("side"), r.URL.Query().Get("amount"))
	if err != nil {
		writeErr(w, err)
		return
	}

	isYes := side == engine.OutcomeYES
	shares, err := mkt.CalculateSharesOut(isYes, amount)
	if err != nil {
		writeErr(w, err)
		return
	}

	yes, no := mkt.Pools()
	if isYes {
		yes += amount
	} else {
		no += amount
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		Market:        mkt.Address(),
		Side:          side,
		Amount:        amount,
		Shares:        shares,
		SharesDisplay: token.FormatUnits(shares),
		OddsAfter:     engine.Odds(yes, no),
	})
}

// handleGetShares handles GET /api/market/{address}/shares/{account}
func (s *Server) handleGetShares(w http.ResponseWriter, r *http.Request) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	account, err := parseAddress(r.PathValue("account"))
	if err != nil {
		writeErr(w, err)
		return
	}

	yes, no := mkt.GetUserShares(account)
	writeJSON(w, http.StatusOK, SharesResponse{
		Market:    mkt.Address(),
		Account:   account,
		YesShares: yes,
		NoShares:  no,
	})
}

// handleGetPurchases handles GET /api/market/{address}/purchases?limit=n
func (s *Server) handleGetPurchases(w http.ResponseWriter, r *http.Request) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, s.purchaseHistory(mkt.Address()).Recent(limit))
}
