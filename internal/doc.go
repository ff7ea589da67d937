// Package internal 實作多人遊戲的即時訊息中繼服務。
//
// 客戶端透過 WebSocket 連線，送出 join 加入一個具名房間，
// 之後送出的遊戲狀態訊息會原樣轉發給同房間的其他所有玩家。
// 伺服器不解讀遊戲語意，只看 type、roomId、playerId 三個欄位。
//
// # 房間註冊表
//
// Registry 維護 roomID → playerID → Peer 的對應：
//   - 第一個玩家加入時建立房間
//   - 最後一個玩家離開時刪除房間
//   - 所有操作在同一把 RWMutex 內完成，不會觀察到空房間
//
// # 中繼引擎
//
// Relay 為每個連接保存一份 Session（unjoined → joined → terminated），
// 依訊息類型分派：
//
//	join         綁定會話、加入房間、廣播 {"type":"join","playerId","roomId"}
//	leave        先廣播原訊息，再清理綁定
//	state_update、action_request、turn_update、lobby_state、ready_update、
//	color_update、chat、countdown、start_game
//	             已加入房間時原樣廣播
//	其他         忽略
//
// 廣播永遠排除發送者；不可發送的收件者直接跳過，不排隊也不重試。
// 無法解析的訊息直接丟棄，不回應也不斷線。
//
// # 傳輸層
//
// WebSocketHub 負責升級、讀寫、Ping/Pong 心跳與關閉。
// 每個連接一個讀取 goroutine，因此同一連接的訊息依序處理；
// 讀取結束（關閉或錯誤）時呼叫一次 Relay.Disconnect。
//
// 使用範例
//
//	rooms := internal.NewRegistry()
//	relay := internal.NewRelay(rooms, internal.NewMetrics(rooms), logger)
//	hub := internal.NewWebSocketHub(relay, cfg, logger)
//	handler := internal.NewHandler(relay, hub, cfg, logger)
//
//	log.Fatal(http.ListenAndServe(cfg.Addr(), handler.Routes()))
//
// 客戶端：
//
//	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:8083/", nil)
//	ws.WriteJSON(map[string]string{"type": "join", "roomId": "r1", "playerId": "p1"})
//
// # HTTP 端點
//
//   - GET /        非升級請求回應 "WebSocket server is running."
//   - GET /health  健康檢查
//   - GET /stats   房間、玩家、連接數
//   - GET /metrics Prometheus 指標
package internal
