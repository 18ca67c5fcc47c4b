// Command admin provides account and settings maintenance for StudyHub operators.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"studyhub/internal/cache"
	"studyhub/internal/config"
	"studyhub/internal/database"
	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/service"
)

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <user_id>          - Grant admin")
	fmt.Println("  go run ./cmd/admin demote <user_id>           - Revoke admin")
	fmt.Println("  go run ./cmd/admin ban <user_id>              - Ban a user")
	fmt.Println("  go run ./cmd/admin unban <user_id>            - Lift a ban")
	fmt.Println("  go run ./cmd/admin list-admins                - List all admins")
	fmt.Println("  go run ./cmd/admin set-setting <key> <value>  - Change a platform setting")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Redis is only needed so cached users and settings are invalidated.
	cache.InitRedis(cfg.RedisURL)

	users := repository.NewUserRepository(db)
	ctx := context.Background()

	switch cmd := os.Args[1]; cmd {
	case "promote":
		err = setFlag(ctx, users, argAt(2), "is_admin", true)
	case "demote":
		err = setFlag(ctx, users, argAt(2), "is_admin", false)
	case "ban":
		err = setFlag(ctx, users, argAt(2), "is_banned", true)
	case "unban":
		err = setFlag(ctx, users, argAt(2), "is_banned", false)
	case "list-admins":
		err = listAdmins(ctx, users)
	case "set-setting":
		if len(os.Args) < 4 {
			printUsage()
			os.Exit(1)
		}
		settings := service.NewSettingsService(repository.NewSettingRepository(db))
		var previous string
		previous, err = settings.Set(ctx, os.Args[2], os.Args[3], 0)
		if err == nil {
			fmt.Printf("%s: %q -> %q\n", os.Args[2], previous, os.Args[3])
		}
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func argAt(i int) string {
	if len(os.Args) <= i {
		printUsage()
		os.Exit(1)
	}
	return os.Args[i]
}

func setFlag(ctx context.Context, users repository.UserRepository, rawID, column string, value bool) error {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid user id %q", rawID)
	}

	user, err := users.GetByID(ctx, uint(id))
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return fmt.Errorf("user with ID %d not found", id)
		}
		return err
	}

	current := user.IsAdmin
	if column == "is_banned" {
		current = user.IsBanned
	}
	if current == value {
		fmt.Printf("User %s (ID: %d) already has %s=%t\n", user.Username, user.ID, column, value)
		return nil
	}

	if err := users.UpdateFields(ctx, user.ID, map[string]any{column: value}); err != nil {
		return err
	}
	fmt.Printf("Updated %s (ID: %d): %s=%t\n", user.Username, user.ID, column, value)
	return nil
}

func listAdmins(ctx context.Context, users repository.UserRepository) error {
	admins, err := users.ListAdmins(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return nil
	}

	fmt.Println("Current admins:")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
	return nil
}
