// Package main seeds the assignment graph from a YAML fixture. Seeding is
// idempotent: nodes are matched by reference id and existing edges are left
// alone, so the command can run on every deploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stocklane.io/stocklane/internal/config"
	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/infrastructure"
	apperrors "stocklane.io/stocklane/internal/pkg/errors"
	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/service"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var file string
	flag.StringVar(&file, "file", "seed.yaml", "path to the seed fixture")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	fx, err := parseFixture(raw)
	if err != nil {
		return fmt.Errorf("parse fixture %s: %w", file, err)
	}

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	stores := db.Stores()
	assignments := service.NewAssignmentService(stores.Assignments, stores.Nodes)

	logger.Info("Seeding assignment graph...",
		zap.Int("nodes", len(fx.Nodes)),
		zap.Int("assignments", len(fx.Assignments)),
	)

	nodesByRef := make(map[uuid.UUID]domain.Node, len(fx.Nodes))
	for _, n := range fx.Nodes {
		node, err := assignments.RegisterNode(ctx, n.referenceID, n.RefDataFacility)
		if err != nil {
			return fmt.Errorf("register node %s: %w", n.ReferenceID, err)
		}
		nodesByRef[n.referenceID] = node
	}

	created, skipped := 0, 0
	for _, a := range fx.Assignments {
		node, ok := nodesByRef[a.nodeReferenceID]
		if !ok {
			return fmt.Errorf("assignment references unknown node %s", a.NodeReferenceID)
		}
		_, err := assignments.Assign(ctx, domain.Assignment{
			ProgramID:      a.programID,
			FacilityTypeID: a.facilityTypeID,
			NodeID:         node.ID,
			Direction:      domain.Direction(a.Direction),
		})
		if err != nil {
			if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeDuplicateAssignment {
				skipped++
				continue
			}
			return fmt.Errorf("assign %s node %s: %w", a.Direction, a.NodeReferenceID, err)
		}
		created++
	}

	logger.Info("Seeding completed",
		zap.Int("assignments_created", created),
		zap.Int("assignments_existing", skipped),
	)
	return nil
}

// fixture is the YAML shape of a seed file.
type fixture struct {
	Nodes       []fixtureNode       `yaml:"nodes"`
	Assignments []fixtureAssignment `yaml:"assignments"`
}

type fixtureNode struct {
	ReferenceID     string `yaml:"referenceId"`
	RefDataFacility bool   `yaml:"refDataFacility"`

	referenceID uuid.UUID
}

type fixtureAssignment struct {
	ProgramID       string `yaml:"programId"`
	FacilityTypeID  string `yaml:"facilityTypeId"`
	NodeReferenceID string `yaml:"nodeReferenceId"`
	Direction       string `yaml:"direction"`

	programID       uuid.UUID
	facilityTypeID  uuid.UUID
	nodeReferenceID uuid.UUID
}

// parseFixture unmarshals and validates a seed file. All ids must be UUIDs
// and every direction must be SOURCE or DESTINATION.
func parseFixture(raw []byte) (fixture, error) {
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return fixture{}, err
	}

	for i := range fx.Nodes {
		id, err := uuid.Parse(fx.Nodes[i].ReferenceID)
		if err != nil {
			return fixture{}, fmt.Errorf("nodes[%d].referenceId: %w", i, err)
		}
		fx.Nodes[i].referenceID = id
	}

	for i := range fx.Assignments {
		a := &fx.Assignments[i]
		var err error
		if a.programID, err = uuid.Parse(a.ProgramID); err != nil {
			return fixture{}, fmt.Errorf("assignments[%d].programId: %w", i, err)
		}
		if a.facilityTypeID, err = uuid.Parse(a.FacilityTypeID); err != nil {
			return fixture{}, fmt.Errorf("assignments[%d].facilityTypeId: %w", i, err)
		}
		if a.nodeReferenceID, err = uuid.Parse(a.NodeReferenceID); err != nil {
			return fixture{}, fmt.Errorf("assignments[%d].nodeReferenceId: %w", i, err)
		}
		if !domain.Direction(a.Direction).Valid() {
			return fixture{}, fmt.Errorf("assignments[%d].direction: invalid %q", i, a.Direction)
		}
	}
	return fx, nil
}
