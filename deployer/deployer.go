package deployer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/network"
	"github.com/mnslabs/mns-backend/pipeline"
	"github.com/mnslabs/mns-backend/vm"
)

// ErrAddressInconsistent is returned when the persisted address does not
// exist on the network. The store and the chain disagree; this needs an
// operator, not a silent redeploy.
var ErrAddressInconsistent = errors.New("persisted contract address not found on network")

// Deployer is the deployment idempotency controller. It owns the registry
// account's lifecycle: creation, deployment, address persistence, and
// adoption of an already deployed instance.
type Deployer struct {
	store    interfaces.AddressStore
	node     network.Client
	pipeline *pipeline.Pipeline
	log      *slog.Logger

	// ForceDeploy provisions a fresh contract instance even when one already
	// exists. Mirrors the server's --force-deploy flag.
	ForceDeploy bool

	mu sync.Mutex
}

// New creates a deployment controller.
func New(store interfaces.AddressStore, node network.Client, pl *pipeline.Pipeline, log *slog.Logger) *Deployer {
	return &Deployer{store: store, node: node, pipeline: pl, log: log}
}

// EnsureDeployed returns the registry contract address, deploying exactly
// once. The resolution order is:
//
//  1. an account already installed in the pipeline,
//  2. the persisted address, verified against the network and adopted,
//  3. a registry instance discovered on the network (covers the case where a
//     previous deploy succeeded but persisting its address failed),
//  4. a fresh deployment.
//
// A persisted address the network does not know is ErrAddressInconsistent;
// EnsureDeployed never papers over it by deploying again.
func (d *Deployer) EnsureDeployed(ctx context.Context) (interfaces.ContractAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ForceDeploy {
		if d.pipeline.Deployed() {
			return d.pipeline.Address()
		}

		addr, err := d.store.Load()
		switch {
		case err == nil:
			return d.adopt(ctx, addr)
		case errors.Is(err, interfaces.ErrNoAddress):
			// Nothing persisted; fall through to network reconciliation.
		default:
			return interfaces.ContractAddress{}, fmt.Errorf("loading persisted contract address: %w", err)
		}

		addr, err = d.node.RegistryAccount(ctx)
		switch {
		case err == nil:
			d.log.Info("adopting registry instance discovered on network", "address", addr)
			if adopted, aerr := d.adopt(ctx, addr); aerr == nil {
				if serr := d.store.Save(addr); serr != nil {
					d.log.Error("failed to persist adopted contract address", "address", addr, "err", serr)
				}
				return adopted, nil
			} else {
				return interfaces.ContractAddress{}, aerr
			}
		case errors.Is(err, network.ErrAccountNotFound):
			// No instance anywhere; deploy below.
		default:
			return interfaces.ContractAddress{}, fmt.Errorf("querying network for registry instance: %w", err)
		}
	} else {
		d.log.Info("force deploy requested, provisioning a new contract instance")
	}

	return d.deploy(ctx)
}

// adopt verifies the address on the network and installs the account.
func (d *Deployer) adopt(ctx context.Context, addr interfaces.ContractAddress) (interfaces.ContractAddress, error) {
	info, err := d.node.AccountInfo(ctx, addr)
	if errors.Is(err, network.ErrAccountNotFound) {
		return interfaces.ContractAddress{}, fmt.Errorf("%w: %s", ErrAddressInconsistent, addr)
	}
	if err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("verifying contract address %s on network: %w", addr, err)
	}

	d.pipeline.Install(vm.NewAccountAt(info.Address, info.Nonce))
	d.log.Info("adopted existing registry contract", "address", info.Address, "nonce", info.Nonce)
	return info.Address, nil
}

// deploy provisions a fresh account, runs the deploy script through the
// pipeline and persists the address. A persistence failure after a
// successful deployment is surfaced loudly; the instance itself remains
// installed and is rediscovered through the network on the next start.
func (d *Deployer) deploy(ctx context.Context) (interfaces.ContractAddress, error) {
	addr, err := randomAddress()
	if err != nil {
		return interfaces.ContractAddress{}, err
	}
	account := vm.NewAccount(addr)

	record, err := d.pipeline.SubmitDeployment(ctx, account)
	if err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("deploying registry contract: %w", err)
	}
	d.log.Info("registry contract deployed", "address", addr, "tx", record.ID)

	if err := d.store.Save(addr); err != nil {
		// The contract exists on chain now. Do not hide that behind the
		// persistence failure: report both and leave rediscovery to the
		// network reconciliation path.
		return addr, fmt.Errorf("contract deployed at %s but persisting the address failed (manual intervention or restart reconciliation required): %w", addr, err)
	}
	return addr, nil
}

func randomAddress() (interfaces.ContractAddress, error) {
	var addr interfaces.ContractAddress
	if _, err := rand.Read(addr[:]); err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("generating account seed: %w", err)
	}
	return addr, nil
}
