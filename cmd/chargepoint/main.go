// Command chargepoint runs a single C6 CP Role Runtime against a Central
// System, dialing out over OCPP 1.6-J the way a physical charge point
// would. It doubles as a reference client for exercising a centralsystem
// deployment and as a load-test fixture.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/evstack/ocpp16/internal/auth"
	"github.com/evstack/ocpp16/internal/chargepoint"
	"github.com/evstack/ocpp16/internal/codec"
	"github.com/evstack/ocpp16/internal/config"
	"github.com/evstack/ocpp16/internal/logger"
	"github.com/evstack/ocpp16/internal/ocpp16"
	"github.com/evstack/ocpp16/internal/rpc"
	"github.com/evstack/ocpp16/internal/smartcharging"
)

func main() {
	csURL := pflag.String("cs-url", "ws://localhost:8887/ocpp", "Central System base WebSocket URL (the charge point id is appended)")
	chargePointID := pflag.String("id", "CP001", "charge point identity presented on the wire")
	password := pflag.String("password", "", "HTTP Basic-Auth password, if the Central System requires one")
	vendor := pflag.String("vendor", "evstack", "ChargePointVendor reported in BootNotification")
	model := pflag.String("model", "simulator", "ChargePointModel reported in BootNotification")
	connectors := pflag.Int("connectors", 1, "number of connectors, excluding connector 0")
	voltage := pflag.Float64("voltage", 230.0, "nominal mains voltage used for A<->W charging-rate conversion")
	logLevel := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := log.GetLogger()

	dialer := &websocket.Dialer{Subprotocols: []string{"ocpp1.6"}, HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if *password != "" {
		header.Set("Authorization", basicAuthHeader(*chargePointID, *password))
	}
	url := *csURL + "/" + *chargePointID
	ws, _, err := dialer.Dial(url, header)
	if err != nil {
		log.Fatalf("Failed to dial Central System at %s: %v", url, err)
	}
	log.Infof("Connected to Central System at %s", url)

	dispatcher := rpc.NewDispatcher(codec.NewDefaultSchemaValidator(), zlog)
	conn := rpc.NewConn(ws, dispatcher, zlog)

	standardConfig := config.NewStandardConfig(zlog)
	localList := auth.NewLocalList(true, 10000)
	cache := auth.NewCache(10000)
	authorizer := auth.NewAuthorizer(localList, cache, standardConfig, &connTransport{conn: conn})

	limits := smartcharging.Limits{
		MaxStackLevel:                10,
		MaxSchedulePeriods:           24,
		AllowedChargingRateUnit:      []ocpp16.ChargingRateUnitType{ocpp16.RateUnitW, ocpp16.RateUnitA},
		MaxChargingProfilesInstalled: 10,
	}
	profiles := smartcharging.NewProfileDB(limits)

	identity := chargepoint.Identity{ChargePointID: *chargePointID, Vendor: *vendor, Model: *model}
	runtime := chargepoint.NewRuntime(identity, conn, authorizer, profiles, smartcharging.FixedVoltage(*voltage), *connectors, zlog)
	runtime.RegisterHandlers(dispatcher, localList, cache, standardConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	status, err := runtime.Boot(ctx)
	cancel()
	if err != nil {
		log.Fatalf("BootNotification failed: %v", err)
	}
	log.Infof("BootNotification accepted with status %s", status)

	for i := 1; i <= *connectors; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := runtime.NotifyStatus(ctx, i, ocpp16.StatusAvailable, ocpp16.ErrorNoError); err != nil {
			log.Warnf("StatusNotification for connector %d failed: %v", i, err)
		}
		cancel()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down charge point runtime...")
	runtime.Stop()
	if err := conn.Close(); err != nil {
		log.Errorf("Error closing connection: %v", err)
	}
}

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// connTransport adapts *rpc.Conn to auth.Transport, so the Authorization
// Subsystem can place an online Authorize() call without this package
// depending on internal/rpc directly.
type connTransport struct {
	conn *rpc.Conn
}

func (t *connTransport) IsConnected() bool {
	select {
	case <-t.conn.Done():
		return false
	default:
		return true
	}
}

func (t *connTransport) Authorize(ctx context.Context, idTag string) (ocpp16.IdTagInfo, error) {
	raw, err := t.conn.Call(ctx, string(ocpp16.ActionAuthorize), ocpp16.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return ocpp16.IdTagInfo{}, err
	}
	var resp ocpp16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ocpp16.IdTagInfo{}, err
	}
	return resp.IdTagInfo, nil
}
