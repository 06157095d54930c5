package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evstack/ocpp16/internal/centralsystem"
	"github.com/evstack/ocpp16/internal/config"
	domainevents "github.com/evstack/ocpp16/internal/domain/events"
	"github.com/evstack/ocpp16/internal/events"
	"github.com/evstack/ocpp16/internal/logger"
	"github.com/evstack/ocpp16/internal/message"
	"github.com/evstack/ocpp16/internal/metrics"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/storage"
)

func main() {
	// 1. 加载应用配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")
	zlog := log.GetLogger()

	// 3. 初始化 Redis 连接路由表：记录每个充电桩当前由哪个 Pod 持有连接，
	// 使下行指令能够跨多个 centralsystem 副本正确路由（teacher 的
	// storage.RedisStorage 原本即为此目的而生）。
	connRouting, err := storage.NewRedisStorage(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize connection routing storage: %v", err)
	}
	log.Info("Connection routing storage initialized")

	// 4. 初始化 Kafka 生产者，承载 C10 事件总线的持久化落地
	producer, err := message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.UpstreamTopic, cfg.PodID)
	if err != nil {
		log.Fatalf("Failed to initialize Kafka producer: %v", err)
	}
	log.Info("Kafka producer initialized")

	// 5. 初始化 Kafka 消费者，接收下行指令
	consumer, err := message.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.DownstreamTopic, cfg.PodID, cfg.Kafka.PartitionNum, log)
	if err != nil {
		log.Fatalf("Failed to initialize Kafka consumer: %v", err)
	}
	log.Infof("Kafka consumer initialized with brokers: %v, group: %s", cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)

	// 6. 初始化事件总线，挂载 Kafka 作为持久化 Sink
	bus := events.NewBus(zlog)
	bus.AddSink(events.NewKafkaSink(producer))
	log.Info("Event bus initialized with Kafka sink")

	// 7. 订阅连接生命周期事件，维护 Redis 路由表
	connEvents, unsubscribe := bus.Subscribe()
	go func() {
		for evt := range connEvents {
			switch evt.GetType() {
			case domainevents.EventTypeChargePointDisconnected:
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.WriteTimeout)
				if err := connRouting.DeleteConnection(ctx, evt.GetChargePointID()); err != nil {
					log.Errorf("Failed to clear routing entry for %s: %v", evt.GetChargePointID(), err)
				}
				cancel()
			default:
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.WriteTimeout)
				if err := connRouting.SetConnection(ctx, evt.GetChargePointID(), cfg.PodID, cfg.WebSocket.IdleTimeout); err != nil {
					log.Errorf("Failed to refresh routing entry for %s: %v", evt.GetChargePointID(), err)
				}
				cancel()
			}
		}
	}()

	// 8. 初始化鉴权存储与事务存储（内存实现；Redis 本地授权名单见 centralsystem.Authenticator 的自定义实现）
	idTags := centralsystem.NewMemoryIdTagStore()
	txs := centralsystem.NewMemoryTransactionStore()

	// 9. 初始化 C7 CS Role Runtime
	csCfg := centralsystem.DefaultConfig()
	csCfg.Addr = cfg.GetServerAddr()
	csCfg.Path = cfg.Server.WebSocketPath
	csCfg.ReadBufferSize = cfg.WebSocket.ReadBufferSize
	csCfg.WriteBufferSize = cfg.WebSocket.WriteBufferSize
	csCfg.HandshakeTimeout = cfg.WebSocket.HandshakeTimeout
	server := centralsystem.NewServer(csCfg, basicAuthenticator{}, idTags, txs, bus, zlog)

	// 10. 定义下行指令处理器：把 Kafka 上收到的 Command 转发给对应的 ChargePointProxy
	commandHandler := func(cmd *message.Command) {
		proxy, ok := server.Proxy(cmd.ChargePointID)
		if !ok {
			log.Warnf("Dropping command %s for unknown charge point %s", cmd.CommandName, cmd.ChargePointID)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.OCPP.MessageTimeout)
		defer cancel()
		if err := dispatchCommand(ctx, proxy, cmd); err != nil {
			log.Errorf("Command %s to %s failed: %v", cmd.CommandName, cmd.ChargePointID, err)
		}
	}

	// 11. 启动监控服务器
	metrics.RegisterMetrics()
	go startMetricsServer(cfg.GetMetricsAddr(), log)
	log.Infof("Metrics server starting on %s...", cfg.GetMetricsAddr())

	// 12. 启动 Kafka 消费者
	go func() {
		if err := consumer.Start(commandHandler); err != nil {
			log.Errorf("Kafka consumer failed: %v", err)
		}
	}()
	log.Info("Kafka consumer starting...")

	// 13. 启动 CS WebSocket 服务器
	go func() {
		log.Infof("Central System listening on %s%s", csCfg.Addr, csCfg.Path)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Central System server failed: %v", err)
		}
	}()

	log.Info("Central System started successfully")

	// 14. 监听并处理优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down Central System...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down Central System server: %v", err)
	}
	log.Info("Central System server shut down")

	unsubscribe()

	if err := consumer.Close(); err != nil {
		log.Errorf("Error closing Kafka consumer: %v", err)
	}
	log.Info("Kafka consumer closed")

	if err := producer.Close(); err != nil {
		log.Errorf("Error closing Kafka producer: %v", err)
	}
	log.Info("Kafka producer closed")

	if err := connRouting.Close(); err != nil {
		log.Errorf("Error closing connection routing storage: %v", err)
	}

	log.Info("Central System gracefully stopped.")
}

// dispatchCommand unmarshals cmd.Payload into the typed request the
// named CS-to-CP action expects and places it over proxy, mirroring the
// direction table in internal/ocpp16.DirectionOf. Unknown or CP-to-CS
// command names are rejected rather than silently dropped.
func dispatchCommand(ctx context.Context, proxy *centralsystem.ChargePointProxy, cmd *message.Command) error {
	switch ocpp16.Action(cmd.CommandName) {
	case ocpp16.ActionRemoteStartTransaction:
		var req ocpp16.RemoteStartTransactionRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.RemoteStartTransaction(ctx, req)
		return err
	case ocpp16.ActionRemoteStopTransaction:
		var req ocpp16.RemoteStopTransactionRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.RemoteStopTransaction(ctx, req)
		return err
	case ocpp16.ActionChangeAvailability:
		var req ocpp16.ChangeAvailabilityRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.ChangeAvailability(ctx, req)
		return err
	case ocpp16.ActionChangeConfiguration:
		var req ocpp16.ChangeConfigurationRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.ChangeConfiguration(ctx, req)
		return err
	case ocpp16.ActionGetConfiguration:
		var req ocpp16.GetConfigurationRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.GetConfiguration(ctx, req)
		return err
	case ocpp16.ActionClearCache:
		_, err := proxy.ClearCache(ctx)
		return err
	case ocpp16.ActionReset:
		var req ocpp16.ResetRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.Reset(ctx, req)
		return err
	case ocpp16.ActionUnlockConnector:
		var req ocpp16.UnlockConnectorRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.UnlockConnector(ctx, req)
		return err
	case ocpp16.ActionSetChargingProfile:
		var req ocpp16.SetChargingProfileRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.SetChargingProfile(ctx, req)
		return err
	case ocpp16.ActionClearChargingProfile:
		var req ocpp16.ClearChargingProfileRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.ClearChargingProfile(ctx, req)
		return err
	case ocpp16.ActionGetCompositeSchedule:
		var req ocpp16.GetCompositeScheduleRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.GetCompositeSchedule(ctx, req)
		return err
	case ocpp16.ActionSendLocalList:
		var req ocpp16.SendLocalListRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.SendLocalList(ctx, req)
		return err
	case ocpp16.ActionGetLocalListVersion:
		_, err := proxy.GetLocalListVersion(ctx)
		return err
	case ocpp16.ActionTriggerMessage:
		var req ocpp16.TriggerMessageRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.TriggerMessage(ctx, req)
		return err
	case ocpp16.ActionDataTransfer:
		var req ocpp16.DataTransferRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.DataTransfer(ctx, req)
		return err
	case ocpp16.ActionReserveNow:
		var req ocpp16.ReserveNowRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.ReserveNow(ctx, req)
		return err
	case ocpp16.ActionCancelReservation:
		var req ocpp16.CancelReservationRequest
		if err := json.Unmarshal(cmd.Payload, &req); err != nil {
			return err
		}
		_, err := proxy.CancelReservation(ctx, req)
		return err
	default:
		return fmt.Errorf("unsupported downstream command %q", cmd.CommandName)
	}
}

// basicAuthenticator accepts any Basic-Auth credential with a non-empty
// password; an empty password is rejected.
// Production deployments should replace this with a lookup against the
// provisioning system that issued each charge point's password; spec.md
// §6's Security Profile 1/2 leaves credential issuance out of scope.
type basicAuthenticator struct{}

func (basicAuthenticator) Authenticate(chargePointID, password string) bool {
	return password != ""
}

func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
