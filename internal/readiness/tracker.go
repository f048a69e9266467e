package readiness

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 权重与看门狗默认值。
const (
	AssetWeight = 0.7
	DataWeight  = 0.3

	DefaultAssetWatchdog = 30 * time.Second
	DefaultDataWatchdog  = 20 * time.Second

	// stallThreshold 以下的资源进度在看门狗触发时被视为卡住。
	stallThreshold = 50.0
)

// 强制就绪的原因，写入 State.Reason 与日志。
const (
	ReasonAssetWatchdog = "asset_watchdog"
	ReasonDataWatchdog  = "data_watchdog"
)

// State 是某一时刻的进度快照，百分比取值 0-100。
type State struct {
	Assets       float64
	Data         float64
	Overall      float64
	DataFinished bool
	Ready        bool
	Forced       bool
	Reason       string
}

// AfterFunc 与 time.AfterFunc 语义一致，返回的函数用于取消。
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

// Options 配置 Tracker，零值字段取默认。
type Options struct {
	AssetWatchdog time.Duration
	DataWatchdog  time.Duration
	Logger        *logrus.Logger
	// OnChange 在每次状态变化后调用，调用时不持有内部锁。
	OnChange func(State)
	// After 仅供测试替换计时器。
	After AfterFunc
}

// Tracker 合并资源与数据两路进度。
type Tracker struct {
	opts   Options
	logger *logrus.Logger

	mu        sync.Mutex
	state     State
	started   bool
	dataTimer bool
	stops     []func() bool
	done      chan struct{}
}

// NewTracker 构造 Tracker；看门狗在 Start 后才开始计时。
func NewTracker(opts Options) *Tracker {
	if opts.AssetWatchdog <= 0 {
		opts.AssetWatchdog = DefaultAssetWatchdog
	}
	if opts.DataWatchdog <= 0 {
		opts.DataWatchdog = DefaultDataWatchdog
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{opts: opts, logger: logger, done: make(chan struct{})}
}

// Start 启动资源看门狗，重复调用无效果。
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.state.Ready {
		return
	}
	t.started = true
	t.stops = append(t.stops, t.opts.After(t.opts.AssetWatchdog, t.assetWatchdog))
}

// SetAssetProgress 记录资源进度百分比，只增不减。
func (t *Tracker) SetAssetProgress(percentage float64) {
	t.update(func(s *State) {
		if p := clamp(percentage); p > s.Assets {
			s.Assets = p
		}
	})
}

// SetDataProgress 记录数据同步进度百分比，只增不减。
func (t *Tracker) SetDataProgress(percentage float64) {
	t.update(func(s *State) {
		if p := clamp(percentage); p > s.Data {
			s.Data = p
		}
	})
}

// FinishData 标记数据同步完成。
func (t *Tracker) FinishData() {
	t.update(func(s *State) {
		s.Data = 100
		s.DataFinished = true
	})
}

// State 返回当前快照。
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done 在就绪（含强制就绪）后关闭。
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Stop 取消所有看门狗，不改变就绪状态。
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimersLocked()
}

func (t *Tracker) assetWatchdog() {
	t.update(func(s *State) {
		if s.Ready || s.Assets >= stallThreshold {
			return
		}
		t.logger.WithFields(logrus.Fields{
			"action": "readiness",
			"assets": s.Assets,
		}).Warn("asset_watchdog_fired")
		s.Assets = 100
		s.Forced = true
		s.Reason = ReasonAssetWatchdog
	})
}

func (t *Tracker) dataWatchdog() {
	t.update(func(s *State) {
		if s.Ready || s.DataFinished {
			return
		}
		t.logger.WithFields(logrus.Fields{
			"action": "readiness",
			"data":   s.Data,
		}).Warn("data_watchdog_fired")
		s.Ready = true
		s.Forced = true
		s.Reason = ReasonDataWatchdog
	})
}

func (t *Tracker) update(mutate func(*State)) {
	t.mu.Lock()
	if t.state.Ready {
		t.mu.Unlock()
		return
	}
	before := t.state
	mutate(&t.state)
	if t.state.Assets >= 100 && !t.dataTimer && !t.state.Ready {
		t.dataTimer = true
		t.stops = append(t.stops, t.opts.After(t.opts.DataWatchdog, t.dataWatchdog))
	}
	if t.state.Assets >= 100 && t.state.DataFinished {
		t.state.Ready = true
	}
	t.state.Overall = t.state.Assets*AssetWeight + t.state.Data*DataWeight
	if t.state.Ready {
		t.state.Overall = 100
		t.stopTimersLocked()
		close(t.done)
	}
	after := t.state
	t.mu.Unlock()

	if after != before && t.opts.OnChange != nil {
		t.opts.OnChange(after)
	}
}

func (t *Tracker) stopTimersLocked() {
	for _, stop := range t.stops {
		stop()
	}
	t.stops = nil
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
