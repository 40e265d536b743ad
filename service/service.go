// Package service implements the transport-agnostic name service operations:
// register, lookup and list across the centralized and hybrid tiers. The
// HTTP surface is a thin collaborator on top of this package.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mnslabs/mns-backend/contract"
	"github.com/mnslabs/mns-backend/deployer"
	"github.com/mnslabs/mns-backend/interfaces"
	"github.com/mnslabs/mns-backend/pipeline"
	"github.com/mnslabs/mns-backend/vm"
)

// Service orchestrates the tiers. Tier 2 is the directory store; tier 2.5 is
// the contract execution pipeline.
type Service struct {
	directory interfaces.Directory
	deployer  *deployer.Deployer
	pipeline  *pipeline.Pipeline
	log       *slog.Logger
}

// New wires the service.
func New(dir interfaces.Directory, dep *deployer.Deployer, pl *pipeline.Pipeline, log *slog.Logger) *Service {
	return &Service{directory: dir, deployer: dep, pipeline: pl, log: log}
}

// Register binds name to accountID on the requested tier. Validation and
// conflict failures are synchronous and never touch the VM.
func (s *Service) Register(ctx context.Context, rawName, rawAccount string, tier interfaces.Tier) (*interfaces.RegistrationResult, error) {
	name, err := interfaces.NewName(rawName)
	if err != nil {
		return nil, err
	}
	accountID, err := interfaces.NewAccountID(rawAccount)
	if err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: the server only processes tier %s and tier %s requests", interfaces.ErrValidation, interfaces.TierCentralized, interfaces.TierHybrid)
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`mns_register_total{tier=%q}`, tier)).Inc()

	switch tier {
	case interfaces.TierCentralized:
		return s.registerCentralized(name, accountID)
	default:
		return s.registerHybrid(ctx, name, accountID)
	}
}

func (s *Service) registerCentralized(name interfaces.Name, accountID interfaces.AccountID) (*interfaces.RegistrationResult, error) {
	if _, err := s.directory.Lookup(name.String()); err == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrConflict, name)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	rec := interfaces.Record{
		Name:    name.String(),
		Address: accountID.String(),
		Version: string(interfaces.TierCentralized),
	}
	if err := s.directory.Upsert(rec); err != nil {
		return nil, err
	}

	s.log.Info("name registered in directory", "name", name, "address", accountID)
	return &interfaces.RegistrationResult{
		Name:    rec.Name,
		Address: rec.Address,
		Version: rec.Version,
	}, nil
}

func (s *Service) registerHybrid(ctx context.Context, name interfaces.Name, accountID interfaces.AccountID) (*interfaces.RegistrationResult, error) {
	if _, err := s.deployer.EnsureDeployed(ctx); err != nil {
		return nil, err
	}

	// Friendly conflict detection before any script is built. The VM's
	// storage write enforces the same rule again under the exclusive slot,
	// so two racing registrations cannot both commit.
	if _, err := s.resolveContract(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrConflict, name)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	// A transient submission failure is retried once from scratch: the
	// script and advice are rebuilt against the then-current nonce after the
	// exclusive slot was re-acquired.
	var record *interfaces.TransactionRecord
	var err error
	for attempt := 1; ; attempt++ {
		record, err = s.submitRegister(ctx, name, accountID)
		if err == nil || attempt >= 2 || !interfaces.IsTransient(err) {
			break
		}
		s.log.Warn("register submission failed transiently, rebuilding", "name", name, "attempt", attempt, "err", err)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("name registered on contract",
		"name", name, "address", accountID, "tx", record.ID, "status", record.Status.String())

	return &interfaces.RegistrationResult{
		Name:          name.String(),
		Address:       accountID.String(),
		Version:       string(interfaces.TierHybrid),
		TransactionID: string(record.ID),
	}, nil
}

func (s *Service) submitRegister(ctx context.Context, name interfaces.Name, accountID interfaces.AccountID) (*interfaces.TransactionRecord, error) {
	nameWord, err := contract.NameWord(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}
	accountWord, err := contract.AccountWord(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}

	script, err := contract.Compose(contract.ScriptRegister)
	if err != nil {
		return nil, err
	}
	record, err := s.pipeline.Submit(ctx, script, contract.RegisterAdvice(nameWord, accountWord))
	if err != nil {
		// A storage write against an already bound key means another
		// registration won the race for this name.
		if errors.Is(err, vm.ErrKeyBound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrConflict, name)
		}
		return nil, err
	}
	record.Name = name
	record.Address = accountID
	record.Tier = interfaces.TierHybrid
	return record, nil
}

// Lookup resolves a name. An empty tier means "any": the directory answers
// first, then the contract, mirroring how the service has always resolved.
func (s *Service) Lookup(ctx context.Context, rawName string, tier interfaces.Tier) (*interfaces.LookupResult, error) {
	name, err := interfaces.NewName(rawName)
	if err != nil {
		return nil, err
	}
	if tier != "" && !tier.Valid() {
		return nil, fmt.Errorf("%w: unsupported tier %q", interfaces.ErrValidation, tier)
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`mns_lookup_total{tier=%q}`, orAny(tier))).Inc()

	if tier == "" || tier == interfaces.TierCentralized {
		rec, err := s.directory.Lookup(name.String())
		switch {
		case err == nil:
			return &interfaces.LookupResult{Address: rec.Address, Version: rec.Version}, nil
		case errors.Is(err, interfaces.ErrNotFound):
			if tier == interfaces.TierCentralized {
				return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, name)
			}
		default:
			// A failing store is a fault, not an absence. Only the any-tier
			// path may fall through to the contract.
			if tier == interfaces.TierCentralized {
				return nil, fmt.Errorf("directory lookup for %s: %w", name, err)
			}
			s.log.Warn("directory lookup failed, falling through to contract", "name", name, "err", err)
		}
	}

	accountID, err := s.resolveContract(ctx, name)
	if err != nil {
		return nil, err
	}
	return &interfaces.LookupResult{
		Address: accountID.String(),
		Version: string(interfaces.TierHybrid),
	}, nil
}

// resolveContract runs a lookup script against the committed contract state.
func (s *Service) resolveContract(ctx context.Context, name interfaces.Name) (interfaces.AccountID, error) {
	if !s.pipeline.Deployed() {
		// No contract instance means nothing was ever registered on it.
		return "", fmt.Errorf("%w: %s", interfaces.ErrNotFound, name)
	}

	nameWord, err := contract.NameWord(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}
	script, err := contract.Compose(contract.ScriptLookup)
	if err != nil {
		return "", err
	}

	out, err := s.pipeline.ExecuteReadOnly(ctx, script, contract.LookupAdvice(nameWord))
	if err != nil {
		return "", err
	}
	value, found, err := contract.ParseLookupOutput(out)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", interfaces.ErrNotFound, name)
	}
	return contract.AccountIDFromWord(value), nil
}

// List enumerates a tier's bindings ordered by name.
func (s *Service) List(ctx context.Context, tier interfaces.Tier) ([]interfaces.Record, error) {
	switch tier {
	case interfaces.TierCentralized:
		return s.directory.List()
	case interfaces.TierHybrid:
		entries, err := s.pipeline.Entries()
		if err != nil {
			if errors.Is(err, pipeline.ErrNotDeployed) {
				return nil, nil
			}
			return nil, err
		}
		recs := make([]interfaces.Record, 0, len(entries))
		for _, e := range entries {
			recs = append(recs, interfaces.Record{
				Name:    contract.NameFromWord(e.Key),
				Address: contract.AccountIDFromWord(e.Value).String(),
				Version: string(interfaces.TierHybrid),
			})
		}
		return recs, nil
	default:
		return nil, fmt.Errorf("%w: tier %q does not support enumeration", interfaces.ErrValidation, tier)
	}
}

func orAny(tier interfaces.Tier) string {
	if tier == "" {
		return "any"
	}
	return string(tier)
}
