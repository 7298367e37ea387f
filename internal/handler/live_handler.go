package handler

import (
	"net/http"
	"time"

	"careerkit-go/internal/middleware"
	"careerkit-go/internal/service"
	"careerkit-go/pkg/log"
	"careerkit-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// LiveHandler 通过 WebSocket 推送已保存列表的每一次完整重新渲染。
type LiveHandler struct {
	store service.SavedResponseService
}

// NewLiveHandler 创建一个新的 LiveHandler。
func NewLiveHandler(store service.SavedResponseService) *LiveHandler {
	return &LiveHandler{store: store}
}

// Handle 处理一个传入的 WebSocket 连接。连接建立后立即发送当前片段，之后每次渲染发送一次。
// 客户端处理较慢时只保留最新的片段，旧片段被丢弃。
func (h *LiveHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	if claims, ok := c.Get(middleware.ClaimsKey); ok {
		log.Infof("WebSocket 连接已建立，用户: %s", claims.(*token.SessionClaims).Email)
	}

	fragments := make(chan string, 1)
	unsubscribe := h.store.Subscribe(func(fragment string) {
		offerLatest(fragments, fragment)
	})
	defer unsubscribe()

	// 先订阅再发送当前片段，订阅之后的变更都会再经由通道送达
	if err := h.write(conn, h.store.Render()); err != nil {
		log.Warnf("向 WebSocket 写入失败: %v", err)
		return
	}

	// 读循环只用于发现连接关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Info("WebSocket 连接已关闭")
			return
		case fragment := <-fragments:
			if err := h.write(conn, fragment); err != nil {
				log.Warnf("向 WebSocket 写入失败: %v", err)
				return
			}
		}
	}
}

func (h *LiveHandler) write(conn *websocket.Conn, fragment string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(fragment))
}

// offerLatest 非阻塞地放入 fragment，通道已满时替换掉尚未发送的旧片段。
// 监听器在存储锁内被串行调用，因此这里不存在并发写入者。
func offerLatest(ch chan string, fragment string) {
	select {
	case ch <- fragment:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- fragment:
	default:
	}
}
