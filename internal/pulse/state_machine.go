package pulse

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ConnState 为推送连接的状态
type ConnState string

const (
	StateConnecting ConnState = "CONNECTING"
	StateOpen       ConnState = "OPEN"
	StateClosing    ConnState = "CLOSING"
	StateClosed     ConnState = "CLOSED"
)

// 允许的状态转换
var transitions = map[ConnState][]ConnState{
	StateConnecting: {StateOpen, StateClosing, StateClosed},
	StateOpen:       {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
	StateClosed:     {},
}

// connStateMachine 只记录连接状态，驱动它的是 Provider 和连接回调
type connStateMachine struct {
	mu      sync.RWMutex
	current ConnState
	logger  *zap.Logger
}

func newConnStateMachine(logger *zap.Logger) *connStateMachine {
	return &connStateMachine{current: StateConnecting, logger: logger}
}

// Transition 非法或重复的转换被忽略并返回 false
func (sm *connStateMachine) Transition(to ConnState) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	if from == to || !slices.Contains(transitions[from], to) {
		return false
	}

	sm.current = to
	sm.logger.Info("Connection state transition",
		zap.String("From", string(from)),
		zap.String("To", string(to)),
	)
	return true
}

func (sm *connStateMachine) Current() ConnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
