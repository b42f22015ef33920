package broker

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var validID = regexp.MustCompile(`^[A-Za-z0-9]+(?:[ _-][A-Za-z0-9]+)*$`)

// NewRouter mounts the broker on a gin engine under path.
func NewRouter(hub *Hub, keys KeyValidator, path string, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	path = normalizePath(path)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	base := router.Group(path)
	base.GET("/:key/id", func(c *gin.Context) {
		if _, err := keys.Validate(c.Param("key")); err != nil {
			c.String(http.StatusUnauthorized, "Invalid key provided")
			return
		}
		c.String(http.StatusOK, uuid.NewString())
	})
	base.GET("/peerjs", ServeWs(hub, keys, log))

	return router
}

// ServeWs upgrades a rendezvous socket and registers its client with the hub.
func ServeWs(hub *Hub, keys KeyValidator, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("id")
		token := c.Query("token")
		key := c.Query("key")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", "error", err)
			return
		}

		reject := func(msg string) {
			conn.WriteJSON(errorMessage(msg))
			conn.Close()
		}
		if id == "" || token == "" || key == "" {
			reject("No id, token, or key supplied to websocket server")
			return
		}
		if _, err := keys.Validate(key); err != nil {
			reject("Invalid key provided")
			return
		}
		if !validID.MatchString(id) {
			reject("Invalid id")
			return
		}

		client := &Client{
			Hub:   hub,
			Conn:  conn,
			ID:    id,
			Token: token,
			Send:  make(chan *Message, 256),
			log:   log,
		}

		if !submit(hub, hub.Register, client) {
			reject("Server is shutting down")
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func normalizePath(path string) string {
	path = "/" + strings.Trim(path, "/")
	return path
}
