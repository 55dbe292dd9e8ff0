package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// adminClient habla con /api/admin de un servidor en marcha.
type adminClient struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *adminClient) do(method, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequest(method, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, b, nil
}

// call ejecuta y falla con el body si el status no es 2xx.
func (c *adminClient) call(op, method, path string, body []byte) error {
	status, resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("%s fallo: status=%d body=%s", op, status, string(resp))
	}
	c.print(status, resp)
	return nil
}

func (c *adminClient) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(strings.TrimSpace(string(body)))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func newAdminCmd() *cobra.Command {
	cl := &adminClient{
		BaseURL:   envOr("TCPOIDC_ADMIN_URL", "http://localhost:8080"),
		APIKey:    envOr("TCPOIDC_ADMIN_KEY", ""),
		OutFormat: envOr("TCPOIDC_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operaciones contra /api/admin de un servidor en marcha",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cl.APIKey == "" {
				return fmt.Errorf("falta API key (flag --admin-api-key o env TCPOIDC_ADMIN_KEY)")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cl.BaseURL, "admin-api-url", cl.BaseURL, "URL base del servidor (env TCPOIDC_ADMIN_URL)")
	cmd.PersistentFlags().StringVar(&cl.APIKey, "admin-api-key", cl.APIKey, "API key de admin (env TCPOIDC_ADMIN_KEY)")
	cmd.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "Formato de salida: json|text")

	var fresh bool
	providers := &cobra.Command{
		Use:   "providers",
		Short: "Listado admin de proveedores",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/admin/oidc/providers"
			if fresh {
				path += "?fresh=1"
			}
			return cl.call("providers", http.MethodGet, path, nil)
		},
	}
	providers.Flags().BoolVar(&fresh, "fresh", false, "Ignora el cache")

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Escribe un setting vía PATCH /api/admin/settings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _ := json.Marshal(map[string]string{args[0]: args[1]})
			return cl.call("set", http.MethodPatch, "/api/admin/settings", b)
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Vacía el cache de listados",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.call("purge", http.MethodDelete, "/api/admin/oidc/cache", nil)
		},
	}

	toggle := func(on bool) *cobra.Command {
		verb := "disable"
		if on {
			verb = "enable"
		}
		return &cobra.Command{
			Use:   verb,
			Short: "Habilita o deshabilita la extensión",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.call(verb, http.MethodPost, "/api/admin/extension/"+verb, nil)
			},
		}
	}

	cmd.AddCommand(providers, set, purge, toggle(true), toggle(false))
	return cmd
}
