package gateway

import (
	"sync"
)

// ConnectionManager safely stores and retrieves active client connections.
type ConnectionManager struct {
	connections sync.Map // map[connID]*Conn
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

func (cm *ConnectionManager) Add(conn *Conn) {
	cm.connections.Store(conn.ID(), conn)
}

func (cm *ConnectionManager) Remove(connID string) {
	cm.connections.Delete(connID)
}

func (cm *ConnectionManager) Count() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll closes every socket. Each read loop then exits and runs its normal
// disconnect cleanup.
func (cm *ConnectionManager) CloseAll() {
	cm.connections.Range(func(_, v any) bool {
		v.(*Conn).ws.Close()
		return true
	})
}
