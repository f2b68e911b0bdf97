package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zsxqsync/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session cookies",
	Long: `Manage the session cookies used against the remote API.

Cookies are stored, in order of preference, in:
  - the system keychain (when available)
  - an encrypted file (AES-GCM with a PBKDF2-derived key)
  - the ZSXQSYNC_COOKIE environment variable (read-only)

To get a cookie, log into wx.zsxq.com in a browser, open developer
tools, and copy the Cookie header of any api.zsxq.com request.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [group-id]",
	Short: "Store a session cookie for a group",
	Example: `  # Interactive login
  zsxqsync auth login

  # Login for a specific group
  zsxqsync auth login 48841215254128`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <group-id>",
	Short: "Remove a stored session cookie",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions with cookies masked",
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	var group string
	if len(args) > 0 {
		group = args[0]
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Group ID: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		group = strings.TrimSpace(line)
	}
	if group == "" {
		return fmt.Errorf("group id is required")
	}

	// The cookie is read without echo, like a password.
	fmt.Print("Cookie (input hidden): ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("could not read cookie: %w", err)
	}

	cookie := auth.CleanCookie(string(raw))
	if err := auth.ValidateCookie(cookie); err != nil {
		return err
	}

	if err := manager.Store(&auth.Session{GroupID: group, Cookie: cookie}); err != nil {
		return err
	}
	fmt.Printf("Stored cookie for group %s (%s)\n", group, auth.MaskCookie(cookie))
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed credentials for group %s\n", args[0])
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return err
	}
	sessions, err := manager.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stored sessions. Use 'zsxqsync auth login' to add one.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  (updated %s)\n", s.GroupID, auth.MaskCookie(s.Cookie), s.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}
