// The mns-server binary serves the name service API: directory-backed
// registrations on tier 2 and contract executions proved and submitted to the
// network on tier 2.5.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mnslabs/mns-backend/cmd/flags"
	"github.com/mnslabs/mns-backend/common"
	"github.com/mnslabs/mns-backend/deployer"
	"github.com/mnslabs/mns-backend/directory"
	"github.com/mnslabs/mns-backend/httpserver"
	"github.com/mnslabs/mns-backend/network"
	"github.com/mnslabs/mns-backend/pipeline"
	"github.com/mnslabs/mns-backend/service"
)

func main() {
	app := &cli.App{
		Name:  "mns-server",
		Usage: "Serve the name service API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.NodeAddrFlag,
			flags.DBPathFlag,
			flags.AddressFileFlag,
			flags.ForceDeployFlag,
			flags.LogServiceFlagFn(common.PackageName),
		}, flags.CommonFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))

	var node network.Client
	if nodeAddr := cCtx.String(flags.NodeAddrFlag.Name); nodeAddr == "mock" {
		logger.Info("Using in-process mock node")
		node = network.NewMockNode()
	} else {
		logger.Info("Using network node", "address", nodeAddr)
		node = network.NewNodeClient(nodeAddr)
	}

	dir, err := directory.Open(cCtx.String(flags.DBPathFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to open directory database", "err", err)
		return err
	}
	defer dir.Close()

	addrStore, err := deployer.NewFileAddressStore(cCtx.String(flags.AddressFileFlag.Name))
	if err != nil {
		logger.Error("Failed to create address store", "err", err)
		return err
	}

	pl := pipeline.New(node, pipeline.TranscriptProver{}, logger, pipeline.Config{})

	dep := deployer.New(addrStore, node, pl, logger)
	dep.ForceDeploy = cCtx.Bool(flags.ForceDeployFlag.Name)

	svc := service.New(dir, dep, pl, logger)

	server, err := httpserver.New(cfg, httpserver.NewHandler(svc, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}
