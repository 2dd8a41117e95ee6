package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"perp_trading/internal/engine"
	"perp_trading/internal/feed"
	"perp_trading/internal/models"
)

type Server struct {
	engine *engine.TradingEngine
	port   string
}

func NewServer(engine *engine.TradingEngine, port string) *Server {
	return &Server{
		engine: engine,
		port:   port,
	}
}

func (s *Server) Start() {
	http.HandleFunc("/", s.handleIndex)
	http.HandleFunc("/api/status", s.handleStatus)
	http.HandleFunc("/api/position", s.handlePosition)
	http.HandleFunc("/api/position/open", s.handleOpenPosition)
	http.HandleFunc("/api/position/close", s.handleClosePosition)
	http.HandleFunc("/api/trades", s.handleTrades)
	http.HandleFunc("/api/stats", s.handleStats)
	http.HandleFunc("/api/signal", s.handleSignal)
	http.HandleFunc("/api/history", s.handleHistory)
	http.HandleFunc("/api/config", s.handleConfig)
	http.HandleFunc("/api/engine/action", s.handleEngineAction)
	http.HandleFunc("/api/health", s.handleHealth)
	http.HandleFunc("/ws", s.handleWS)

	log.Printf("🌐 Web server starting on http://localhost:%s", s.port)
	go func() {
		if err := http.ListenAndServe(":"+s.port, nil); err != nil {
			log.Printf("Web server error: %v", err)
		}
	}()
}

// errStatus maps ledger and feed errors onto HTTP codes: bad input is 400,
// opening twice or closing flat is 409, a feed that has not delivered a
// price yet is 503.
func errStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, feed.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) statusPayload() map[string]interface{} {
	st := s.engine.Status()

	payload := map[string]interface{}{
		"running":         st.Running,
		"last_price":      st.LastPrice,
		"last_tick_at":    st.LastTickAt.Unix(),
		"signal":          st.Signal,
		"signal_strength": st.SignalStrength,
		"balance":         st.Balance,
		"equity":          st.Equity,
		"feed_errors":     st.FeedErrors,
		"position":        positionPayload(st),
		"config": map[string]interface{}{
			"lookback_periods": st.Config.LookbackPeriods,
			"trend_threshold":  st.Config.TrendThreshold,
			"position_size":    st.Config.PositionSize,
			"leverage":         st.Config.Leverage,
			"fee_rate":         st.Config.FeeRate,
		},
		"timestamp": time.Now().Unix(),
	}
	return payload
}

func positionPayload(st models.Status) map[string]interface{} {
	if !st.Position.IsOpen() {
		return nil
	}
	return map[string]interface{}{
		"side":              st.Position.Side,
		"entry_price":       st.Position.EntryPrice,
		"size":              st.Position.Size,
		"leverage":          st.Position.Leverage,
		"opened_at":         st.Position.OpenedAt.Unix(),
		"unrealized_pl":     st.UnrealizedPL,
		"liquidation_price": st.LiquidationPrice,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.statusPayload())
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()

	response := map[string]interface{}{
		"open": st.Position.IsOpen(),
	}
	if pos := positionPayload(st); pos != nil {
		response["position"] = pos
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

type tradeResponse struct {
	ID          string  `json:"id"`
	Side        string  `json:"side"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Size        float64 `json:"size"`
	Leverage    int     `json:"leverage"`
	FeePaid     float64 `json:"fee_paid"`
	RealizedPL  float64 `json:"realized_pl"`
	OpenedAt    int64   `json:"opened_at"`
	ClosedAt    int64   `json:"closed_at"`
	DurationSec int64   `json:"duration_sec"`
	CloseReason string  `json:"close_reason"`
}

func toTradeResponse(t models.Trade) tradeResponse {
	return tradeResponse{
		ID:          t.ID,
		Side:        t.Side,
		EntryPrice:  t.EntryPrice,
		ExitPrice:   t.ExitPrice,
		Size:        t.Size,
		Leverage:    t.Leverage,
		FeePaid:     t.FeePaid,
		RealizedPL:  t.RealizedPL,
		OpenedAt:    t.OpenedAt.Unix(),
		ClosedAt:    t.ClosedAt.Unix(),
		DurationSec: int64(t.Duration.Seconds()),
		CloseReason: t.CloseReason,
	}
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.engine.GetTrades()

	response := make([]tradeResponse, len(trades))
	for i, t := range trades {
		response[i] = toTradeResponse(t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.GetStats()

	response := map[string]interface{}{
		"total_trades":  stats.TotalTrades,
		"profitable":    stats.ProfitableTrades,
		"losing":        stats.LosingTrades,
		"realized_pl":   stats.RealizedPL,
		"total_fees":    stats.TotalFees,
		"win_rate":      stats.WinRate,
		"avg_trade":     stats.AvgTrade,
		"avg_win":       stats.AvgWin,
		"avg_loss":      stats.AvgLoss,
		"profit_factor": stats.ProfitFactor,
		"balance":       stats.Balance,
		"equity":        stats.Equity,
		"timestamp":     time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.SignalState()
	cfg := s.engine.GetConfig()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"signal":           snap.Signal,
		"strength":         snap.Strength,
		"samples":          snap.Samples,
		"lookback_periods": cfg.LookbackPeriods,
		"trend_threshold":  cfg.TrendThreshold,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.engine.History()

	type tickResponse struct {
		Time  int64   `json:"time"`
		Price float64 `json:"price"`
	}

	response := make([]tickResponse, len(history))
	for i, t := range history {
		response[i] = tickResponse{Time: t.Timestamp.Unix(), Price: t.Price}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		cur := s.engine.GetConfig()

		// Absent fields keep their current values.
		data := struct {
			LookbackPeriods int     `json:"lookback_periods"`
			TrendThreshold  float64 `json:"trend_threshold"`
			PositionSize    float64 `json:"position_size"`
			Leverage        int     `json:"leverage"`
			FeeRate         float64 `json:"fee_rate"`
		}{cur.LookbackPeriods, cur.TrendThreshold, cur.PositionSize, cur.Leverage, cur.FeeRate}

		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		update := models.StrategyConfig{
			LookbackPeriods: data.LookbackPeriods,
			TrendThreshold:  data.TrendThreshold,
			PositionSize:    data.PositionSize,
			Leverage:        data.Leverage,
			FeeRate:         data.FeeRate,
		}
		if err := s.engine.UpdateConfig(update); err != nil {
			http.Error(w, err.Error(), errStatus(err))
			return
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
		return
	}

	cfg := s.engine.GetConfig()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"lookback_periods": cfg.LookbackPeriods,
		"trend_threshold":  cfg.TrendThreshold,
		"position_size":    cfg.PositionSize,
		"leverage":         cfg.Leverage,
		"fee_rate":         cfg.FeeRate,
	})
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Side string `json:"side"`
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	log.Printf("🔄 Manual %s requested from API", data.Side)
	pos, err := s.engine.ManualOpen(data.Side)
	if err != nil {
		log.Printf("❌ Manual open failed: %v", err)
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result":      "ok",
		"side":        pos.Side,
		"entry_price": pos.EntryPrice,
		"size":        pos.Size,
		"leverage":    pos.Leverage,
	})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log.Println("🔄 Manual close requested from API")
	trade, err := s.engine.ManualClose()
	if err != nil {
		log.Printf("❌ Manual close failed: %v", err)
		http.Error(w, err.Error(), errStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": "ok",
		"trade":  toTradeResponse(trade),
	})
}

func (s *Server) handleEngineAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var data struct {
		Action string `json:"action"`
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch data.Action {
	case "start":
		log.Println("▶️ Engine Start requested from API")
		s.engine.Start()
	case "stop":
		log.Println("⏸️ Engine Stop requested from API")
		s.engine.Stop()
	case "reset":
		log.Println("♻️ Session reset requested from API")
		s.engine.Reset()
	case "tick":
		s.engine.PollNow()
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()

	health := map[string]interface{}{
		"status":       "ok",
		"running":      st.Running,
		"last_price":   st.LastPrice,
		"last_tick_at": st.LastTickAt.Unix(),
		"feed_errors":  st.FeedErrors,
		"timestamp":    time.Now().Unix(),
	}
	if st.FeedErrors > 0 {
		health["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS streams status snapshots to the dashboard every two seconds so
// the UI does not have to poll for price and P&L updates.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("🔌 Dashboard connected: %s", r.RemoteAddr)

	// Drain incoming frames so close and ping frames get processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.statusPayload()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			log.Printf("🔌 Dashboard disconnected: %s", r.RemoteAddr)
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.statusPayload()); err != nil {
				log.Printf("🔌 Dashboard disconnected: %s", r.RemoteAddr)
				return
			}
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="ru">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Perp Paper Trading</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: linear-gradient(135deg, #0f0c29, #302b63, #24243e);
            color: #fff;
            min-height: 100vh;
            padding: 20px;
        }

        .container {
            max-width: 1400px;
            margin: 0 auto;
            display: grid;
            grid-template-columns: 350px 1fr;
            gap: 20px;
        }

        .card {
            background: rgba(255, 255, 255, 0.05);
            backdrop-filter: blur(10px);
            border-radius: 16px;
            padding: 24px;
            border: 1px solid rgba(255, 255, 255, 0.1);
            box-shadow: 0 8px 32px rgba(0, 0, 0, 0.3);
        }

        h1 {
            font-size: 28px;
            margin-bottom: 24px;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            -webkit-background-clip: text;
            -webkit-text-fill-color: transparent;
        }

        h2 {
            font-size: 20px;
            margin-bottom: 16px;
            color: #a0aec0;
        }

        .stat-row {
            display: flex;
            justify-content: space-between;
            padding: 12px 0;
            border-bottom: 1px solid rgba(255, 255, 255, 0.05);
        }

        .stat-label {
            color: #a0aec0;
        }

        .stat-value {
            font-weight: 600;
            color: #fff;
        }

        .positive {
            color: #48bb78;
        }

        .negative {
            color: #f56565;
        }

        .status-badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 12px;
            font-weight: 600;
        }

        .status-active {
            background: rgba(72, 187, 120, 0.2);
            color: #48bb78;
        }

        .status-stopped {
            background: rgba(245, 101, 101, 0.2);
            color: #f56565;
        }

        .status-neutral {
            background: rgba(160, 174, 192, 0.2);
            color: #a0aec0;
        }

        .position-card {
            background: rgba(255, 255, 255, 0.03);
            border-radius: 12px;
            padding: 16px;
            border-left: 4px solid;
        }

        .position-long {
            border-left-color: #48bb78;
        }

        .position-short {
            border-left-color: #f56565;
        }

        .position-header {
            display: flex;
            justify-content: space-between;
            margin-bottom: 12px;
        }

        .side-long {
            background: rgba(72, 187, 120, 0.2);
            color: #48bb78;
        }

        .side-short {
            background: rgba(245, 101, 101, 0.2);
            color: #f56565;
        }

        .position-details {
            display: grid;
            grid-template-columns: repeat(2, 1fr);
            gap: 8px;
            font-size: 13px;
        }

        .detail-item {
            display: flex;
            justify-content: space-between;
        }

        .empty-state {
            text-align: center;
            padding: 40px;
            color: #a0aec0;
        }

        .btn {
            padding: 12px;
            border: none;
            border-radius: 8px;
            color: white;
            font-weight: 700;
            cursor: pointer;
        }

        .btn-green {
            background: linear-gradient(135deg, #48bb78 0%, #38a169 100%);
        }

        .btn-red {
            background: linear-gradient(135deg, #f56565 0%, #e53e3e 100%);
        }

        .btn-blue {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
        }

        .btn-row {
            display: grid;
            grid-template-columns: repeat(2, 1fr);
            gap: 10px;
            margin-bottom: 12px;
        }

        .config-row {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 12px;
        }

        .config-row input {
            width: 110px;
            padding: 8px;
            border-radius: 6px;
            border: 1px solid rgba(255, 255, 255, 0.1);
            background: rgba(255, 255, 255, 0.05);
            color: white;
            outline: none;
            text-align: right;
        }

        @media (max-width: 768px) {
            .container {
                grid-template-columns: 1fr;
            }
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="sidebar">
            <div class="card">
                <h1>📊 Perp Paper Trading</h1>
                <div class="stat-row">
                    <span class="stat-label">Статус</span>
                    <span class="stat-value" id="status">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">💹 Цена</span>
                    <span class="stat-value" id="last_price">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">🎯 Сигнал</span>
                    <span class="stat-value" id="signal">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">💰 Баланс</span>
                    <span class="stat-value" id="balance">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">💎 Equity</span>
                    <span class="stat-value" id="equity">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">📅 Всего сделок</span>
                    <span class="stat-value" id="total_trades">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">📊 Винрейт</span>
                    <span class="stat-value" id="win_rate">-</span>
                </div>
                <div class="stat-row">
                    <span class="stat-label">💸 Комиссии</span>
                    <span class="stat-value" id="total_fees">-</span>
                </div>
            </div>

            <div class="card" style="margin-top: 20px;">
                <h2 style="font-size: 18px; margin-bottom: 20px;">🚀 Engine Control</h2>
                <div class="btn-row">
                    <button class="btn btn-green" onclick="engineAction('start')">Старт</button>
                    <button class="btn btn-red" onclick="engineAction('stop')">Стоп</button>
                </div>
                <button class="btn btn-blue" style="width: 100%; margin-bottom: 10px;" onclick="engineAction('tick')">⚡ Тик сейчас</button>
                <button class="btn" style="width: 100%; background: rgba(255,255,255,0.08);" onclick="resetSession()">♻️ Сброс сессии</button>
            </div>

            <div class="card" style="margin-top: 20px;">
                <h2 style="font-size: 18px; margin-bottom: 20px;">🕹️ Ручная торговля</h2>
                <div class="btn-row">
                    <button class="btn btn-green" onclick="openPosition('LONG')">Лонг</button>
                    <button class="btn btn-red" onclick="openPosition('SHORT')">Шорт</button>
                </div>
                <button class="btn btn-blue" style="width: 100%;" onclick="closePosition()">Закрыть позицию</button>
            </div>

            <div class="card" style="margin-top: 20px;">
                <h2 style="font-size: 18px; margin-bottom: 20px;">⚙️ Стратегия</h2>
                <div class="config-row">
                    <span class="stat-label">Окно тренда</span>
                    <input type="number" id="cfg-lookback" min="2" step="1">
                </div>
                <div class="config-row">
                    <span class="stat-label">Порог тренда</span>
                    <input type="number" id="cfg-threshold" min="0" step="0.0001">
                </div>
                <div class="config-row">
                    <span class="stat-label">Размер (USDC)</span>
                    <input type="number" id="cfg-size" min="1" step="1">
                </div>
                <div class="config-row">
                    <span class="stat-label">Плечо</span>
                    <input type="number" id="cfg-leverage" min="1" max="20" step="1">
                </div>
                <div class="config-row">
                    <span class="stat-label">Комиссия</span>
                    <input type="number" id="cfg-fee" min="0" step="0.0001">
                </div>
                <button class="btn btn-blue" style="width: 100%;" onclick="applyConfig()">Применить</button>
            </div>
        </div>

        <div class="main">
            <div class="card">
                <h2>Открытая позиция</h2>
                <div id="position">
                    <div class="empty-state">Загрузка...</div>
                </div>
            </div>

            <div class="card" style="margin-top: 20px;">
                <h2>История сделок</h2>
                <div style="overflow-x: auto;">
                    <table style="width: 100%; border-collapse: collapse; font-size: 13px;">
                        <thead>
                            <tr style="text-align: left; color: #a0aec0; border-bottom: 1px solid rgba(255,255,255,0.1);">
                                <th style="padding: 12px;">Время</th>
                                <th style="padding: 12px;">Сайд</th>
                                <th style="padding: 12px;">Вход</th>
                                <th style="padding: 12px;">Выход</th>
                                <th style="padding: 12px;">Размер</th>
                                <th style="padding: 12px;">P&L (USDC)</th>
                                <th style="padding: 12px;">Комиссия</th>
                                <th style="padding: 12px;">Причина</th>
                            </tr>
                        </thead>
                        <tbody id="history-table">
                            <tr><td colspan="8" class="empty-state">Загрузка...</td></tr>
                        </tbody>
                    </table>
                </div>
            </div>
        </div>
    </div>

    <script>
        function formatNumber(num, decimals) {
            if (decimals === undefined) decimals = 2;
            return num.toFixed(decimals);
        }

        function formatPL(num) {
            const formatted = formatNumber(num, 2);
            return num >= 0 ? '+' + formatted : formatted;
        }

        function formatTime(unix) {
            return new Date(unix * 1000).toLocaleString();
        }

        function signalBadge(signal, strength) {
            const pct = formatNumber(strength * 100, 2) + '%';
            if (signal === 'BULLISH') {
                return '<span class="status-badge status-active">📈 BULLISH ' + pct + '</span>';
            }
            if (signal === 'BEARISH') {
                return '<span class="status-badge status-stopped">📉 BEARISH ' + pct + '</span>';
            }
            return '<span class="status-badge status-neutral">➖ NEUTRAL</span>';
        }

        function reasonLabel(reason) {
            if (reason === 'LIQUIDATION') return '💥 Ликвидация';
            if (reason === 'STRATEGY') return '🔄 Стратегия';
            return '🕹️ Вручную';
        }

        function applyStatus(st) {
            document.getElementById('status').innerHTML = st.running
                ? '<span class="status-badge status-active">▶️ Активен</span>'
                : '<span class="status-badge status-stopped">⏸️ Остановлен</span>';

            document.getElementById('last_price').textContent = st.last_price > 0
                ? formatNumber(st.last_price, 4) + ' USDC'
                : '-';
            document.getElementById('signal').innerHTML = signalBadge(st.signal, st.signal_strength);
            document.getElementById('balance').textContent = formatNumber(st.balance) + ' USDC';

            const equity = document.getElementById('equity');
            equity.textContent = formatNumber(st.equity) + ' USDC';
            equity.className = 'stat-value ' + (st.equity >= st.balance ? 'positive' : 'negative');

            renderPosition(st.position);
        }

        function renderPosition(p) {
            const container = document.getElementById('position');
            if (!p) {
                container.innerHTML = '<div class="empty-state">Нет открытой позиции</div>';
                return;
            }

            const sideClass = p.side === 'LONG' ? 'long' : 'short';
            const plClass = p.unrealized_pl >= 0 ? 'positive' : 'negative';
            const plPercent = p.size > 0 ? p.unrealized_pl / p.size * 100 : 0;

            container.innerHTML =
                '<div class="position-card position-' + sideClass + '">' +
                    '<div class="position-header">' +
                        '<span class="status-badge side-' + sideClass + '">' + p.side + ' ' + p.leverage + 'x</span>' +
                        '<span class="' + plClass + '" style="font-weight: 700;">' + formatPL(p.unrealized_pl) + ' USDC (' + formatPL(plPercent) + '%)</span>' +
                    '</div>' +
                    '<div class="position-details">' +
                        '<div class="detail-item"><span>Вход:</span><span>' + formatNumber(p.entry_price, 4) + '</span></div>' +
                        '<div class="detail-item"><span>Размер:</span><span>' + formatNumber(p.size) + ' USDC</span></div>' +
                        '<div class="detail-item"><span>Ликвидация:</span><span class="negative">' + formatNumber(p.liquidation_price, 4) + '</span></div>' +
                        '<div class="detail-item"><span>Открыта:</span><span>' + formatTime(p.opened_at) + '</span></div>' +
                    '</div>' +
                '</div>';
        }

        async function loadStats() {
            try {
                const res = await fetch('/api/stats');
                const stats = await res.json();
                document.getElementById('total_trades').textContent = stats.total_trades;
                document.getElementById('win_rate').textContent = formatNumber(stats.win_rate, 1) + '%';
                document.getElementById('total_fees').textContent = formatNumber(stats.total_fees) + ' USDC';
            } catch (error) {
                console.error('Error loading stats:', error);
            }
        }

        async function loadTrades() {
            try {
                const res = await fetch('/api/trades');
                const trades = await res.json();

                const table = document.getElementById('history-table');
                if (!trades || trades.length === 0) {
                    table.innerHTML = '<tr><td colspan="8" class="empty-state">Нет истории сделок</td></tr>';
                    return;
                }

                table.innerHTML = trades.reverse().map(function(t) {
                    const plClass = t.realized_pl >= 0 ? 'positive' : 'negative';
                    const sideClass = t.side === 'LONG' ? 'side-long' : 'side-short';
                    return '<tr style="border-bottom: 1px solid rgba(255,255,255,0.05);">' +
                        '<td style="padding: 12px;">' + formatTime(t.closed_at) + '</td>' +
                        '<td style="padding: 12px;"><span class="status-badge ' + sideClass + '">' + t.side + ' ' + t.leverage + 'x</span></td>' +
                        '<td style="padding: 12px;">' + formatNumber(t.entry_price, 4) + '</td>' +
                        '<td style="padding: 12px;">' + formatNumber(t.exit_price, 4) + '</td>' +
                        '<td style="padding: 12px;">' + formatNumber(t.size) + '</td>' +
                        '<td style="padding: 12px;" class="' + plClass + '">' + formatPL(t.realized_pl) + '</td>' +
                        '<td style="padding: 12px;">' + formatNumber(t.fee_paid, 4) + '</td>' +
                        '<td style="padding: 12px;">' + reasonLabel(t.close_reason) + '</td>' +
                    '</tr>';
                }).join('');
            } catch (error) {
                console.error('Error loading trades:', error);
            }
        }

        async function loadStatus() {
            try {
                const res = await fetch('/api/status');
                applyStatus(await res.json());
            } catch (error) {
                console.error('Error loading status:', error);
            }
        }

        async function syncConfig() {
            try {
                const res = await fetch('/api/config');
                const cfg = await res.json();
                document.getElementById('cfg-lookback').value = cfg.lookback_periods;
                document.getElementById('cfg-threshold').value = cfg.trend_threshold;
                document.getElementById('cfg-size').value = cfg.position_size;
                document.getElementById('cfg-leverage').value = cfg.leverage;
                document.getElementById('cfg-fee').value = cfg.fee_rate;
            } catch (e) {}
        }

        async function applyConfig() {
            const body = {
                lookback_periods: parseInt(document.getElementById('cfg-lookback').value),
                trend_threshold: parseFloat(document.getElementById('cfg-threshold').value),
                position_size: parseFloat(document.getElementById('cfg-size').value),
                leverage: parseInt(document.getElementById('cfg-leverage').value),
                fee_rate: parseFloat(document.getElementById('cfg-fee').value)
            };
            try {
                const res = await fetch('/api/config', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify(body)
                });
                if (!res.ok) {
                    alert('Ошибка: ' + await res.text());
                    return;
                }
                loadStatus();
            } catch (error) {
                console.error('Error applying config:', error);
            }
        }

        async function engineAction(action) {
            try {
                const res = await fetch('/api/engine/action', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ action: action })
                });
                if (res.ok) {
                    setTimeout(refreshAll, 500);
                }
            } catch (error) {
                console.error('Error with engine action:', error);
            }
        }

        function resetSession() {
            if (!confirm('Сбросить баланс, историю и все сделки?')) return;
            engineAction('reset');
        }

        async function openPosition(side) {
            try {
                const res = await fetch('/api/position/open', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ side: side })
                });
                if (!res.ok) {
                    alert('Ошибка: ' + await res.text());
                    return;
                }
                refreshAll();
            } catch (error) {
                console.error('Error opening position:', error);
            }
        }

        async function closePosition() {
            if (!confirm('Закрыть позицию по текущей цене?')) return;
            try {
                const res = await fetch('/api/position/close', { method: 'POST' });
                if (!res.ok) {
                    alert('Ошибка: ' + await res.text());
                    return;
                }
                refreshAll();
            } catch (error) {
                console.error('Error closing position:', error);
            }
        }

        function refreshAll() {
            loadStatus();
            loadStats();
            loadTrades();
        }

        // Live status over WebSocket, полный refresh каждые 5 секунд.
        function connectWS() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = function(e) {
                applyStatus(JSON.parse(e.data));
            };
            ws.onclose = function() {
                setTimeout(connectWS, 3000);
            };
        }

        refreshAll();
        syncConfig();
        connectWS();
        setInterval(function() { loadStats(); loadTrades(); }, 5000);
    </script>
</body>
</html>`
