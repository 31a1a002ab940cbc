package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"njord/domain/book"
	"njord/domain/market"
)

const accountHeader = "X-Account-Id"

// caller extracts the caller identity. Zero is never a valid account.
func caller(c *gin.Context) (market.AccountID, bool) {
	raw := c.GetHeader(accountHeader)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + accountHeader + " header"})
		return 0, false
	}
	return market.AccountID(id), true
}

// fail maps domain sentinels onto HTTP statuses. Anything unrecognized
// is a plain validation failure.
func fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, market.ErrNotMaker):
		status = http.StatusForbidden
	case errors.Is(err, book.ErrPriceNotFound), errors.Is(err, book.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrNothingToClaim):
		status = http.StatusConflict
	case errors.Is(err, book.ErrTooManyMatches):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) placeOrders(c *gin.Context) {
	acct, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Orders []market.OrderRequest `json:"orders" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.svc.LimitOrders(acct, req.Orders)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) cancelOrders(c *gin.Context) {
	acct, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		OrderIDs []uint64           `json:"order_ids" binding:"required"`
		Refs     []market.CancelRef `json:"refs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.CancelOrders(acct, req.OrderIDs, req.Refs); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": len(req.OrderIDs)})
}

func (s *Server) claimCoins(c *gin.Context) {
	acct, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		OrderIDs []uint64 `json:"order_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	net, err := s.svc.ClaimCoins(acct, req.OrderIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"net": net})
}

func (s *Server) claimItems(c *gin.Context) {
	acct, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		OrderIDs []uint64        `json:"order_ids" binding:"required"`
		ItemIDs  []market.ItemID `json:"item_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.ClaimItems(acct, req.OrderIDs, req.ItemIDs); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": len(req.OrderIDs)})
}

func (s *Server) claimAll(c *gin.Context) {
	acct, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		CoinOrderIDs []uint64        `json:"coin_order_ids"`
		ItemOrderIDs []uint64        `json:"item_order_ids"`
		ItemIDs      []market.ItemID `json:"item_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	net, err := s.svc.ClaimAll(acct, req.CoinOrderIDs, req.ItemOrderIDs, req.ItemIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"net": net})
}

func (s *Server) setItemConfigs(c *gin.Context) {
	var req struct {
		ItemIDs []market.ItemID     `json:"item_ids" binding:"required"`
		Configs []market.ItemConfig `json:"configs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.SetItemConfigs(req.ItemIDs, req.Configs); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(req.ItemIDs)})
}

func (s *Server) setMaxOrders(c *gin.Context) {
	var req struct {
		Max uint32 `json:"max_orders_per_price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.SetMaxOrdersPerPrice(req.Max); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"max_orders_per_price": req.Max})
}

func (s *Server) setFees(c *gin.Context) {
	var req struct {
		DevRecipient market.AccountID `json:"dev_recipient"`
		DevRate      uint32           `json:"dev_rate"`
		BurnRate     uint32           `json:"burn_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.SetFees(req.DevRecipient, req.DevRate, req.BurnRate); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.FeeSchedule())
}

func (s *Server) refreshRoyalty(c *gin.Context) {
	if err := s.svc.RefreshRoyalty(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.svc.FeeSchedule())
}

func (s *Server) bestPrices(c *gin.Context) {
	item, ok := itemParam(c)
	if !ok {
		return
	}
	out := gin.H{"highest_bid": nil, "lowest_ask": nil}
	if bid, ok := s.svc.HighestBid(item); ok {
		out["highest_bid"] = bid
	}
	if ask, ok := s.svc.LowestAsk(item); ok {
		out["lowest_ask"] = ask
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) ordersAtPrice(c *gin.Context) {
	item, side, price, ok := levelParams(c)
	if !ok {
		return
	}
	orders := s.svc.OrdersAtPrice(side, item, price)
	if orders == nil {
		orders = []market.OrderView{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) levelNode(c *gin.Context) {
	item, side, price, ok := levelParams(c)
	if !ok {
		return
	}
	node, found := s.svc.LevelNode(side, item, price)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no level at price"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"price":            node.Price,
		"tombstone_offset": node.Tombstone,
		"segments":         node.Segments,
		"orders":           node.Orders,
	})
}

func (s *Server) makerOf(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	maker, found := s.svc.MakerOf(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown order id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "maker": maker})
}

func (s *Server) coinsClaimable(c *gin.Context) {
	ids, err := uint64List(c.Query("ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ids"})
		return
	}
	applyFees := c.Query("apply_fees") == "true"
	c.JSON(http.StatusOK, gin.H{"amounts": s.svc.CoinsClaimable(ids, applyFees)})
}

func (s *Server) itemsClaimable(c *gin.Context) {
	ids, err := uint64List(c.Query("ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ids"})
		return
	}
	rawItems, err := uint64List(c.Query("items"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid items"})
		return
	}
	items := make([]market.ItemID, len(rawItems))
	for i, v := range rawItems {
		items[i] = market.ItemID(v)
	}
	quantities, err := s.svc.ItemsClaimable(ids, items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quantities": quantities})
}

func itemParam(c *gin.Context) (market.ItemID, bool) {
	v, err := strconv.ParseUint(c.Param("item"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, false
	}
	return market.ItemID(v), true
}

func levelParams(c *gin.Context) (market.ItemID, book.Side, uint64, bool) {
	item, ok := itemParam(c)
	if !ok {
		return 0, 0, 0, false
	}
	side, err := book.ParseSide(c.Param("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be bid or ask"})
		return 0, 0, 0, false
	}
	price, err := strconv.ParseUint(c.Param("price"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return 0, 0, 0, false
	}
	return item, side, price, true
}

// uint64List parses a comma separated id list; empty means none.
func uint64List(raw string) ([]uint64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
