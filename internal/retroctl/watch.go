package retroctl

import (
	"fmt"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	gs "github.com/dmitrijs2005/postfacto/internal/server/grpc"
)

func (c *CLI) watchCmd() *cobra.Command {
	var sessionID, joinToken string

	cmd := &cobra.Command{
		Use:   "watch <slug>",
		Short: "Print the live events of a retro, one JSON object per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			conn, err := c.dial(cfg.EndpointAddrGRPC)
			if err != nil {
				return fmt.Errorf("dial %s: %w", cfg.EndpointAddrGRPC, err)
			}
			defer conn.Close()

			ctx := cmd.Context()
			if sessionID != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, common.SessionIDMetadataKey, sessionID)
			}
			if joinToken != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, common.JoinTokenMetadataKey, joinToken)
			}

			return gs.Watch(ctx, conn, args[0], func(ev *structpb.Struct) error {
				line, err := protojson.Marshal(ev)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.out, string(line))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "browser session id that already unlocked the retro")
	cmd.Flags().StringVar(&joinToken, "join-token", "", "magic link token of the retro")

	return cmd
}
