package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"collaborative-canvas/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 一次 final 笔画可能带上千个点
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
	roomQueueSize  = 256
	hubChannelSize = 512
)

// Hub 内部消息类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageInbound    = "message"
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // register / unregister / message
	RoomID  string  // 房间 ID
	Client  *Client // 来源连接
	RawData []byte  // 仅用于 message (原始 WebSocket 文本帧)
}

// roomQueue 是单个房间的消息队列，pending 记录已投递但尚未处理完的消息数
type roomQueue struct {
	ch      chan HubMessage
	pending atomic.Int64
}

// Hub 维护活跃客户端集合，并把每个房间的消息交给该房间专属的协程串行处理。
// 同一房间内：服务调用和出站投递严格按到达顺序执行；不同房间之间互不阻塞。
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	// 房间队列只由 Run 协程创建、关闭和写入
	queues map[string]*roomQueue
	// 房间协程处理完最后一条消息且房间已空时通知 Run 回收队列
	idleChan chan string
	workers  atomic.Int32

	collabService *service.CollaborationService

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(collabService *service.CollaborationService) *Hub {
	if collabService == nil {
		panic("CollaborationService cannot be nil for Hub")
	}
	return &Hub{
		messageChan:   make(chan HubMessage, hubChannelSize),
		rooms:         make(map[string]map[*Client]bool),
		queues:        make(map[string]*roomQueue),
		idleChan:      make(chan string, hubChannelSize),
		collabService: collabService,
		done:          make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件循环，把消息分发到房间队列。
// 它应该在一个单独的 goroutine 中运行，Stop 之后返回。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.messageChan:
			h.dispatch(msg)
		case roomID := <-h.idleChan:
			h.retire(roomID)
		case <-h.done:
			h.wg.Wait()
			h.closeAllClients()
			log.Info("Hub stopped")
			return
		}
	}
}

// Stop 通知 Hub 及所有房间协程退出，可以重复调用
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register 把新连接提交给 Hub。Hub 已停止时返回 false。
func (h *Hub) Register(client *Client) bool {
	return h.QueueMessage(HubMessage{Type: MessageRegister, RoomID: client.RoomID(), Client: client})
}

// QueueMessage 将消息放入 Hub 的处理队列。队列满时阻塞等待，Hub 停止时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount 返回房间当前的连接数
func (h *Hub) ClientCount(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// GetActiveRoomIDs 返回当前有连接的房间 ID
func (h *Hub) GetActiveRoomIDs() []string {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) dispatch(msg HubMessage) {
	queue, ok := h.queues[msg.RoomID]
	if !ok {
		queue = &roomQueue{ch: make(chan HubMessage, roomQueueSize)}
		h.queues[msg.RoomID] = queue
		h.wg.Add(1)
		h.workers.Add(1)
		go h.runRoom(msg.RoomID, queue)
	}
	queue.pending.Add(1)
	select {
	case queue.ch <- msg:
	case <-h.done:
	}
}

// retire 在房间没有连接且队列已处理完时关闭队列，房间协程随之退出。
// 只有 Run 会向队列写入，所以检查和关闭之间不会有新消息进入。
func (h *Hub) retire(roomID string) {
	queue, ok := h.queues[roomID]
	if !ok || queue.pending.Load() != 0 || h.ClientCount(roomID) != 0 {
		return
	}
	delete(h.queues, roomID)
	close(queue.ch)
}

// runRoom 串行处理单个房间的消息，队列被关闭或 Hub 停止时返回
func (h *Hub) runRoom(roomID string, queue *roomQueue) {
	log := logrus.WithField("room_id", roomID)
	defer func() {
		h.workers.Add(-1)
		h.wg.Done()
		log.Debug("Room worker stopped")
	}()
	log.Debug("Room worker started")
	for {
		select {
		case msg, ok := <-queue.ch:
			if !ok {
				return
			}
			h.handle(msg)
			if queue.pending.Add(-1) == 0 && h.ClientCount(roomID) == 0 {
				h.signalIdle(roomID)
			}
		case <-h.done:
			return
		}
	}
}

// signalIdle 不阻塞：通知丢失时房间协程保留到下一次空闲
func (h *Hub) signalIdle(roomID string) {
	select {
	case h.idleChan <- roomID:
	default:
		logrus.WithField("room_id", roomID).Debug("Idle notification dropped, room worker kept")
	}
}

// handle 处理单条消息。panic 被捕获并记录，房间协程继续运行。
func (h *Hub) handle(msg HubMessage) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": msg.RoomID, "conn_id": msg.Client.ID(), "message_type": msg.Type})
	defer func() {
		if r := recover(); r != nil {
			logCtx.WithError(fmt.Errorf("%v", r)).Error("Recovered from panic while handling hub message")
		}
	}()

	ctx := context.Background()
	switch msg.Type {
	case MessageRegister:
		h.registerClient(ctx, msg.Client)
	case MessageUnregister:
		h.unregisterClient(ctx, msg.Client)
	case MessageInbound:
		h.handleInbound(ctx, msg)
	default:
		logCtx.Warn("Hub: Received unknown message type")
	}
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": client.ID(), "action": "registerClient"})

	h.roomsMu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
		logCtx.Info("Client list created for new room")
	}
	h.rooms[roomID][client] = true
	h.roomsMu.Unlock()

	_, out := h.collabService.Join(ctx, roomID, client.ID())
	h.deliver(roomID, client, out)
	logCtx.Info("Client registered to Hub")
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": client.ID(), "action": "unregisterClient"})

	h.roomsMu.Lock()
	roomClients, ok := h.rooms[roomID]
	if !ok || !roomClients[client] {
		h.roomsMu.Unlock()
		logCtx.Debug("Client not found in room during unregister")
		return
	}
	delete(roomClients, client)
	if len(roomClients) == 0 {
		delete(h.rooms, roomID)
		logCtx.Info("Room empty, removed from Hub")
	}
	h.roomsMu.Unlock()

	// 只有房间协程会向 send 写入，这里关闭是安全的
	close(client.send)

	out := h.collabService.Leave(ctx, roomID, client.ID())
	h.deliver(roomID, client, out)
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) handleInbound(ctx context.Context, msg HubMessage) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": msg.RoomID, "conn_id": msg.Client.ID(), "operation": "handleInbound"})
	logCtx.Debugf("Processing client message (data size: %d)", len(msg.RawData))

	if !h.isMember(msg.RoomID, msg.Client) {
		logCtx.Debug("Dropping message from a client that already left")
		return
	}
	out, err := h.collabService.HandleMessage(ctx, msg.RoomID, msg.Client.ID(), msg.RawData)
	if err != nil {
		if service.IsClientError(err) {
			logCtx.WithError(err).Warn("Rejected client message")
		} else {
			logCtx.WithError(err).Error("Error processing message in service")
		}
	}
	h.deliver(msg.RoomID, msg.Client, out)
}

func (h *Hub) isMember(roomID string, client *Client) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.rooms[roomID][client]
}

// deliver 按出站消息的受众投递
func (h *Hub) deliver(roomID string, sender *Client, out []service.Outbound) {
	for _, o := range out {
		switch o.Audience {
		case service.ToSender:
			if h.isMember(roomID, sender) {
				h.send(roomID, sender, o.Payload)
			}
		case service.ToOthers:
			h.broadcast(roomID, o.Payload, sender)
		case service.ToRoom:
			h.broadcast(roomID, o.Payload, nil)
		}
	}
}

// broadcast 将消息发送给指定房间的所有客户端，排除 exclude
func (h *Hub) broadcast(roomID string, message []byte, exclude *Client) {
	h.roomsMu.RLock()
	roomClients := h.rooms[roomID]
	clientsToSend := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		if client != exclude {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clientsToSend {
		h.send(roomID, client, message)
	}
}

// send 非阻塞写入客户端发送队列。队列已满说明客户端跟不上，
// 直接断开连接，重连后会通过 init 重新同步。
func (h *Hub) send(roomID string, client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": client.ID()}).
			Warn("Client send channel full, closing slow connection")
		client.CloseConn()
	}
}

func (h *Hub) closeAllClients() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for roomID, clients := range h.rooms {
		for client := range clients {
			client.CloseConn()
		}
		delete(h.rooms, roomID)
	}
}
