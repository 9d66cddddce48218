package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/volbreak/volbreak/bot"
	"github.com/volbreak/volbreak/config"
	"github.com/volbreak/volbreak/core"
	"github.com/volbreak/volbreak/exchange"
	"github.com/volbreak/volbreak/exchange/dydx"
	"github.com/volbreak/volbreak/logger/zerolog"
	"github.com/volbreak/volbreak/market"
	"github.com/volbreak/volbreak/notification"
	"github.com/volbreak/volbreak/order"
	"github.com/volbreak/volbreak/position"
	"github.com/volbreak/volbreak/risk"
	"github.com/volbreak/volbreak/storage"
	"github.com/volbreak/volbreak/strategy"
)

// Exit codes: 0 normal shutdown, 1 configuration error, 2 venue
// connectivity failed to initialise, 3 circuit breaker already tripped
// by replayed same-day trades.
const (
	exitOK = iota
	exitConfig
	exitVenue
	exitCircuitBroken
)

const defaultLogTimeFormat = "2006-01-02 15:04:05"

var (
	configPath string

	// start command flags, overriding the configuration file
	flagInstrument     string
	flagTimeframe      string
	flagVolumeFactor   float64
	flagResistance     int
	flagRiskReward     float64
	flagPositionSize   float64
	flagSimulation     bool
	flagLive           bool
	flagUpdateInterval string
	flagKeepPosition   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "volbreak",
		Short:   "Volume-confirmed breakout trading daemon for dYdX v4",
		Version: "1.0.0",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "volbreak.yml", "Configuration file path")

	rootCmd.AddCommand(buildStartCmd())
	rootCmd.AddCommand(buildStatusCmd())
	rootCmd.AddCommand(buildSetupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, core.ErrCircuitBrokenAtStart):
		return exitCircuitBroken
	case errors.Is(err, bot.ErrVenueInit):
		return exitVenue
	default:
		return exitConfig
	}
}

func buildStartCmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the trading daemon",
		RunE:  runStart,
	}

	startCmd.Flags().StringVarP(&flagInstrument, "instrument", "i", "", "Market to trade (e.g. ETH-USD)")
	startCmd.Flags().StringVarP(&flagTimeframe, "timeframe", "t", "", "Candle granularity (e.g. 5m)")
	startCmd.Flags().Float64Var(&flagVolumeFactor, "volume-factor", 0, "Breakout volume confirmation multiplier")
	startCmd.Flags().IntVar(&flagResistance, "resistance-periods", 0, "Closed-candle lookback for resistance")
	startCmd.Flags().Float64Var(&flagRiskReward, "risk-reward", 0, "Take-profit multiple of risk")
	startCmd.Flags().Float64Var(&flagPositionSize, "position-size", 0, "Notional per entry in USD")
	startCmd.Flags().BoolVar(&flagSimulation, "simulation", false, "Force simulation mode")
	startCmd.Flags().BoolVar(&flagLive, "live", false, "Force live order submission")
	startCmd.Flags().StringVar(&flagUpdateInterval, "update-interval", "", "Control-loop period (e.g. 45s)")
	startCmd.Flags().BoolVar(&flagKeepPosition, "keep-position", false, "Persist an open position at shutdown instead of closing it")

	return startCmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tradingBot, cleanup, err := assemble(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Infof("starting volbreak on %s %s (simulation=%v)",
		cfg.Instrument, cfg.Timeframe, cfg.SimulationMode)
	return tradingBot.Run(ctx)
}

// assemble wires every component from the validated configuration. The
// returned cleanup closes the order store.
func assemble(cfg *config.Config, log core.Logger) (*bot.Bot, func(), error) {
	clock := core.NewClock()

	venueClient := dydx.NewClient(dydx.Config{
		RESTURL:          cfg.Dydx.RESTURL,
		WSURL:            cfg.Dydx.WSURL,
		GatewayURL:       cfg.Dydx.GatewayURL,
		Address:          cfg.Dydx.Address,
		SubaccountNumber: cfg.Dydx.SubaccountNumber,
	}, log)

	var venue core.VenueClient = venueClient
	var sim *exchange.SimVenue
	if cfg.SimulationMode {
		sim = exchange.NewSimVenue(venueClient, cfg.InitialEquityUSD, log)
		venue = sim
	}

	updateInterval, err := cfg.UpdateIntervalDuration()
	if err != nil {
		return nil, nil, err
	}
	orderTimeout, err := cfg.OrderTimeoutDuration()
	if err != nil {
		return nil, nil, err
	}

	marketData := market.NewMarketData(market.Config{
		Instrument:        cfg.Instrument,
		Timeframe:         cfg.ParsedTimeframe(),
		ResistancePeriods: cfg.Strategy.ResistancePeriods,
		VolumeLookback:    cfg.Strategy.VolumeLookback,
	}, venue, clock, log)

	trades, err := storage.NewTradeLog(cfg.DataDir, log)
	if err != nil {
		return nil, nil, err
	}

	orderStore, err := newOrderStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	riskManager := risk.NewManager(risk.Config{
		MaxPositionSizeUSD: cfg.Risk.MaxPositionSizeUSD,
		MaxDailyLossUSD:    cfg.Risk.MaxDailyLossUSD,
		MaxDrawdownPct:     cfg.Risk.MaxDrawdownPct,
		MaxLeverage:        cfg.Risk.MaxLeverage,
	}, clock, log)

	positions := position.NewManager(log)

	breakout := strategy.NewBreakout(strategy.BreakoutConfig{
		VolumeFactor:      cfg.Strategy.VolumeFactor,
		ResistancePeriods: cfg.Strategy.ResistancePeriods,
		VolumeLookback:    cfg.Strategy.VolumeLookback,
		RiskReward:        cfg.Strategy.RiskRewardRatio,
		StopOffsetPct:     cfg.Strategy.StopOffsetPct,
		PositionSizeUSD:   cfg.Strategy.PositionSizeUSD,
	}, log)

	orderOptions := []order.Option{}
	botOptions := []bot.Option{}
	if sim != nil {
		orderOptions = append(orderOptions, order.WithSimAccount(sim))
	}
	if cfg.Telegram.Enabled {
		telegram, err := notification.NewTelegram(cfg.Telegram.Token, cfg.Telegram.Users, log)
		if err != nil {
			return nil, nil, err
		}
		orderOptions = append(orderOptions, order.WithNotifier(telegram))
		botOptions = append(botOptions, bot.WithNotifier(telegram))
	}

	orders := order.NewManager(order.Config{
		Instrument:   cfg.Instrument,
		LotSize:      cfg.Order.LotSize,
		Simulation:   cfg.SimulationMode,
		MaxLeverage:  cfg.Risk.MaxLeverage,
		OrderTimeout: orderTimeout,
	}, venue, positions, riskManager, trades, orderStore, clock, log, orderOptions...)

	tradingBot := bot.NewBot(bot.Config{
		DataDir:        cfg.DataDir,
		UpdateInterval: updateInterval,
		KeepPosition:   flagKeepPosition,
	}, marketData, breakout, positions, orders, riskManager, trades, clock, log, botOptions...)

	cleanup := func() {
		if closer, ok := orderStore.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
	return tradingBot, cleanup, nil
}

func newOrderStore(cfg *config.Config) (core.OrderStore, error) {
	switch cfg.Order.Store {
	case "sqlite":
		return storage.NewSQLiteOrderStore(cfg.DataDir + "/orders.db")
	default:
		return storage.NewBuntOrderStore(cfg.DataDir + "/orders.buntdb")
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the account snapshot and any open position",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if !cfg.SimulationMode {
		client := dydx.NewClient(dydx.Config{
			RESTURL:          cfg.Dydx.RESTURL,
			Address:          cfg.Dydx.Address,
			SubaccountNumber: cfg.Dydx.SubaccountNumber,
		}, log)
		account, err := client.Account(cmd.Context())
		if err != nil {
			return fmt.Errorf("%w: %v", bot.ErrVenueInit, err)
		}
		fmt.Printf("equity:          %.2f USD\n", account.EquityUSD)
		fmt.Printf("free collateral: %.2f USD\n", account.FreeCollateralUSD)
	}

	state, err := storage.LoadBotState(cfg.DataDir)
	if err != nil {
		return err
	}
	if state.Position != nil {
		fmt.Printf("open position:   %s\n", state.Position)
	} else {
		fmt.Println("open position:   none")
	}

	trades, err := storage.NewTradeLog(cfg.DataDir, log)
	if err != nil {
		return err
	}
	defer trades.Close()
	if metrics := trades.Metrics(); metrics.TotalTrades > 0 {
		fmt.Println(metrics)
	}
	return nil
}

func buildSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively capture venue credentials and write the configuration file",
		RunE:  runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	address, err := prompt(reader, "dYdX address", "")
	if err != nil {
		return err
	}
	subaccount, err := prompt(reader, "Subaccount number", "0")
	if err != nil {
		return err
	}
	subaccountNumber, err := strconv.Atoi(subaccount)
	if err != nil {
		return fmt.Errorf("subaccount number: %w", err)
	}
	gatewayURL, err := prompt(reader, "Trading gateway URL (empty for simulation only)", "")
	if err != nil {
		return err
	}
	instrument, err := prompt(reader, "Instrument", "ETH-USD")
	if err != nil {
		return err
	}

	v := viper.New()
	v.Set("instrument", instrument)
	v.Set("simulation_mode", gatewayURL == "")
	v.Set("dydx.address", address)
	v.Set("dydx.subaccount_number", subaccountNumber)
	v.Set("dydx.gateway_url", gatewayURL)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("configuration written to %s\n", configPath)
	return nil
}

func prompt(reader *bufio.Reader, label, fallback string) (string, error) {
	if fallback != "" {
		fmt.Printf("%s [%s]: ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return line, nil
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if flagInstrument != "" {
		cfg.Instrument = flagInstrument
	}
	if flagTimeframe != "" {
		cfg.Timeframe = flagTimeframe
	}
	if flagVolumeFactor > 0 {
		cfg.Strategy.VolumeFactor = flagVolumeFactor
	}
	if flagResistance > 0 {
		cfg.Strategy.ResistancePeriods = flagResistance
	}
	if flagRiskReward > 0 {
		cfg.Strategy.RiskRewardRatio = flagRiskReward
	}
	if flagPositionSize > 0 {
		cfg.Strategy.PositionSizeUSD = flagPositionSize
	}
	if flagSimulation {
		cfg.SimulationMode = true
	}
	if flagLive {
		cfg.SimulationMode = false
	}
	if flagUpdateInterval != "" {
		cfg.UpdateInterval = flagUpdateInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (core.Logger, error) {
	return zerolog.New(zerolog.Config{
		Level:      cfg.Log.Level,
		TimeFormat: defaultLogTimeFormat,
		Colored:    cfg.Log.Colored,
		JSON:       cfg.Log.JSON,
	})
}
