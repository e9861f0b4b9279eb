package main

import (
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the chat tables in the configured database",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{Name: "seed", Usage: "insert demo users alice and bob sharing room \"general\""},
		},
		Action: func(c *cli.Context) error {
			l := pkglog.L()

			cfg, err := config.Load(pkgconfig.WithConfigFile(opts.Config))
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				return cli.Exit("database.driver is memory, nothing to migrate", 1)
			}

			db, err := database.New(&cfg.Database.Config)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.AutoMigrate(db, domain.Models()...); err != nil {
				return err
			}
			l.Info().Str("driver", cfg.Database.Driver).Msg("migration completed")

			if !c.Bool("seed") {
				return nil
			}
			if err := seed(db); err != nil {
				return err
			}
			l.Info().Msg("demo data inserted")
			return nil
		},
	}
}

// seed inserts a fixed demo data set. Rows that already exist are kept.
func seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		users := []domain.UserModel{
			{ID: "alice", Email: "alice@example.com", Username: "alice", FirstName: "Alice", LastName: "Archer", IsActive: true},
			{ID: "bob", Email: "bob@example.com", Username: "bob", FirstName: "Bob", LastName: "Baker", IsActive: true},
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return err
		}

		room := domain.ChatModel{ID: "general", Name: "General", Type: string(domain.RoomTypeGroup)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error; err != nil {
			return err
		}

		for _, u := range users {
			member := domain.ChatMemberModel{ID: uuid.New().String(), ChatID: room.ID, UserID: u.ID, IsActive: true}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
