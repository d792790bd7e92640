// Package engine 受理母单指令并管理执行实例：实盘指令立即起跑，
// 回测指令受工作槽数限制，超出的按先进先出排队，空出槽位后补位。
package engine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"algo-engine-go/algo"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/infrastructure/monitor"
	"algo-engine-go/market"
	"algo-engine-go/notify"
	"algo-engine-go/order"
	"algo-engine-go/refdata"
	"algo-engine-go/sim"
)

// TickLoader 回测历史行情装载器。
type TickLoader interface {
	Load(symbol string, from, to time.Time) ([]market.Depth, error)
}

// Options 服务依赖与参数。LiveFeed/LiveBook 供实盘指令共用，
// 回测指令各自独享回放行情与撮合模拟。
type Options struct {
	Workers int // 同时执行的回测实例上限

	Provider refdata.Provider
	LiveFeed market.QuoteFeed
	LiveBook order.Book
	Loader   TickLoader

	Publisher notify.Publisher
	Monitor   *monitor.Monitor
	Logger    *logger.Logger
}

type instance struct {
	trader   *algo.Trader
	feed     *market.ReplayFeed // 回测专属，实盘为 nil
	backtest bool
}

// Service 母单受理与实例管理。
type Service struct {
	opts Options
	log  *logger.Logger

	mu        sync.Mutex
	instances map[uint64]*instance
	queue     []*algo.Instruction
	runningBT int
	closed    bool

	wg sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Service{
		opts:      opts,
		log:       opts.Logger,
		instances: make(map[uint64]*instance),
	}
}

// Submit 受理一笔母单指令。回测指令可能进入等待队列，
// 返回 nil 只代表受理成功，执行结果经快照发布。
func (s *Service) Submit(inst *algo.Instruction) error {
	if inst.ID == 0 {
		return fmt.Errorf("instruction id is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("service closed")
	}
	if _, ok := s.instances[inst.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("duplicated algo order id %d", inst.ID)
	}
	for _, q := range s.queue {
		if q.ID == inst.ID {
			s.mu.Unlock()
			return fmt.Errorf("duplicated algo order id %d", inst.ID)
		}
	}

	if inst.IsBacktest() {
		if s.opts.Loader == nil {
			s.mu.Unlock()
			return fmt.Errorf("backtest is not enabled: no tick loader")
		}
		if s.runningBT >= s.opts.Workers {
			s.queue = append(s.queue, inst)
			queued := len(s.queue)
			s.mu.Unlock()
			s.log.Info("回测母单排队",
				zap.Uint64("aid", inst.ID), zap.Int("queueSize", queued))
			s.updateGauges()
			return nil
		}
		s.runningBT++
		s.mu.Unlock()
		if err := s.startBacktest(inst); err != nil {
			s.mu.Lock()
			s.runningBT--
			s.mu.Unlock()
			return err
		}
		return nil
	}

	if s.opts.LiveFeed == nil || s.opts.LiveBook == nil {
		s.mu.Unlock()
		return fmt.Errorf("live trading is not enabled")
	}
	s.mu.Unlock()
	s.startLive(inst)
	return nil
}

func (s *Service) startLive(inst *algo.Instruction) {
	tr := algo.NewTrader(inst, s.opts.Provider, s.opts.LiveFeed, s.opts.LiveBook,
		algo.NewLiveClock(), s.log, s.sink)

	s.register(inst.ID, &instance{trader: tr})
	s.monitorAccepted()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tr.Run()
		s.onFinished(inst.ID, false)
	}()
}

func (s *Service) startBacktest(inst *algo.Instruction) error {
	// 多取一段行情：前沿盖住到达价采样，后沿留给迟到回报
	from := inst.StartTime.Add(-2 * time.Second)
	to := inst.EndTime.Add(30 * time.Second)
	ticks, err := s.opts.Loader.Load(inst.Symbol, from, to)
	if err != nil {
		return fmt.Errorf("load ticks for %s: %w", inst.Symbol, err)
	}

	feed := market.NewReplayFeed(ticks)
	book := sim.NewBook()
	clock := algo.NewReplayClock(inst.StartTime)
	book.SetClock(clock.Now)

	// 撮合模拟与调度器共用同一回放源
	if _, err := feed.Subscribe(&market.Subscription{
		Symbols: map[string]struct{}{inst.Symbol: {}},
		OnDepth: book.OnDepth,
	}); err != nil {
		return fmt.Errorf("subscribe sim book: %w", err)
	}

	tr := algo.NewTrader(inst, s.opts.Provider, feed, book, clock, s.log, s.sink)

	s.register(inst.ID, &instance{trader: tr, feed: feed, backtest: true})
	s.monitorAccepted()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// 调度器完成订阅后才放行情，避免吞掉起跑前的快照
		go func() {
			<-tr.Started()
			if st, _ := tr.Status(); st == algo.StatusRunning {
				feed.Start()
			}
		}()
		tr.Run()
		feed.Stop()
		s.onFinished(inst.ID, true)
	}()
	return nil
}

func (s *Service) register(id uint64, ins *instance) {
	s.mu.Lock()
	s.instances[id] = ins
	s.mu.Unlock()
	s.updateGauges()
}

// onFinished 释放实例；回测槽位空出时起跑队首指令。
func (s *Service) onFinished(id uint64, backtest bool) {
	s.mu.Lock()
	ins := s.instances[id]
	delete(s.instances, id)
	var next *algo.Instruction
	if backtest {
		s.runningBT--
		if !s.closed && len(s.queue) > 0 {
			next = s.queue[0]
			s.queue = s.queue[1:]
			s.runningBT++
		}
	}
	s.mu.Unlock()

	if ins != nil {
		st, _ := ins.trader.Status()
		s.log.LogAlgo("finished", id, map[string]interface{}{"status": string(st)})
		if s.opts.Monitor != nil {
			s.opts.Monitor.RecordInstanceFinished(string(st))
		}
	}
	s.updateGauges()

	for next != nil {
		s.log.Info("队列补位", zap.Uint64("aid", next.ID))
		err := s.startBacktest(next)
		if err == nil {
			break
		}
		s.log.LogError(err, map[string]interface{}{"aid": next.ID, "stage": "queue refill"})
		s.publishFailed(next, err.Error())

		s.mu.Lock()
		s.runningBT--
		if !s.closed && len(s.queue) > 0 {
			next = s.queue[0]
			s.queue = s.queue[1:]
			s.runningBT++
		} else {
			next = nil
		}
		s.mu.Unlock()
	}
}

// Cancel 撤销指定母单。排队中的直接移除并发布终态快照。
func (s *Service) Cancel(id uint64) error {
	s.mu.Lock()
	if ins, ok := s.instances[id]; ok {
		s.mu.Unlock()
		ins.trader.Cancel()
		return nil
	}
	for i, q := range s.queue {
		if q.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			s.log.Info("撤销排队中的母单", zap.Uint64("aid", id))
			s.publishQueuedCancel(q)
			s.updateGauges()
			return nil
		}
	}
	s.mu.Unlock()
	return fmt.Errorf("algo order %d not found", id)
}

// Running 正在执行的实例数。
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Queued 排队中的回测指令数。
func (s *Service) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Status 查询母单状态，排队中的报 CREATING。
func (s *Service) Status(id uint64) (algo.Status, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ins, ok := s.instances[id]; ok {
		st, msg := ins.trader.Status()
		return st, msg, nil
	}
	for _, q := range s.queue {
		if q.ID == id {
			return algo.StatusCreating, "", nil
		}
	}
	return "", "", fmt.Errorf("algo order %d not found", id)
}

// Close 撤销全部执行中的母单并清空队列，等待实例退出。
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	queued := s.queue
	s.queue = nil
	traders := make([]*algo.Trader, 0, len(s.instances))
	for _, ins := range s.instances {
		traders = append(traders, ins.trader)
	}
	s.mu.Unlock()

	for _, q := range queued {
		s.publishQueuedCancel(q)
	}
	for _, tr := range traders {
		tr.Cancel()
	}
	s.wg.Wait()
}

// sink 调度器的快照出口：每次绩效变化发布一次，终态必达。
func (s *Service) sink(t *algo.Trader, final bool) {
	snap := buildSnapshot(t, final)
	snap.SentAt = time.Now()
	if err := s.opts.Publisher.Publish(snap); err != nil {
		s.log.Warn("快照发布失败", zap.Uint64("aid", snap.AlgoOrderID), zap.Error(err))
		if s.opts.Monitor != nil {
			s.opts.Monitor.RecordSnapshotError()
		}
		return
	}
	if s.opts.Monitor != nil {
		s.opts.Monitor.RecordSnapshotPublished()
	}
}

func (s *Service) publishQueuedCancel(inst *algo.Instruction) {
	s.publishFinal(inst, algo.StatusTerminated, "USER CANCEL.")
}

func (s *Service) publishFailed(inst *algo.Instruction, errMsg string) {
	s.publishFinal(inst, algo.StatusError, errMsg)
}

// publishFinal 为尚未建立调度器的指令直接发布终态快照。
func (s *Service) publishFinal(inst *algo.Instruction, status algo.Status, errMsg string) {
	snap := &notify.Snapshot{
		AlgoOrderID: inst.ID,
		Account:     inst.Account,
		Symbol:      inst.Symbol,
		Strategy:    string(inst.Strategy),
		Side:        inst.Side.String(),
		QtyTarget:   inst.QtyTarget,
		StartTime:   inst.StartTime,
		EndTime:     inst.EndTime,
		Status:      string(status),
		ErrMsg:      errMsg,
		Final:       true,
		SentAt:      time.Now(),
	}
	if err := s.opts.Publisher.Publish(snap); err != nil {
		s.log.Warn("终态快照发布失败", zap.Uint64("aid", inst.ID), zap.Error(err))
	}
}

func (s *Service) updateGauges() {
	if s.opts.Monitor == nil {
		return
	}
	s.mu.Lock()
	running := len(s.instances)
	queued := len(s.queue)
	s.mu.Unlock()
	s.opts.Monitor.UpdateInstancesRunning(running)
	s.opts.Monitor.UpdateInstancesQueued(queued)
}

func (s *Service) monitorAccepted() {
	if s.opts.Monitor != nil {
		s.opts.Monitor.RecordInstanceAccepted()
	}
}
