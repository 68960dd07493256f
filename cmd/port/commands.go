package port

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/s2sgate/cmd/util"
	"github.com/ValentinKolb/s2sgate/lib/flow"
	"github.com/ValentinKolb/s2sgate/lib/flow/memsession"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
)

var (
	sendCmd = &cobra.Command{
		Use:   "send [dir]",
		Short: "Sends all files of a directory to the remote port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			repo := memsession.NewRepository()
			count, err := enqueueDir(repo, dir)
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Println("nothing to send")
				return nil
			}

			if viper.GetBool("delete") {
				repo.OnRemove(func(ff *flow.FlowFile) {
					name, _ := ff.Attribute(flow.AttrFilename)
					path, _ := ff.Attribute(flow.AttrPath)
					if err := os.Remove(filepath.Join(path, name)); err != nil {
						util.Logger.Warningf("failed to delete sent file %s: %v", name, err)
					}
				})
			}

			util.PrintConfig("Sending to remote port", portConfig)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = runAdapter(ctx, repo, func() bool { return repo.Removed() == count })
			fmt.Printf("sent %d of %d files\n", repo.Removed(), count)
			return err
		},
	}

	receiveCmd = &cobra.Command{
		Use:   "receive [dir]",
		Short: "Receives flow files from the remote port into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			limit := int64(viper.GetInt("count"))

			var received atomic.Int64
			repo := memsession.NewRepository()
			repo.OnCommit(func(_ string, stored memsession.Stored) {
				path := filepath.Join(dir, fileName(stored.FlowFile))
				if err := os.WriteFile(path, stored.Content, 0o644); err != nil {
					util.Logger.Errorf("failed to write received flow file %s: %v", path, err)
					return
				}
				received.Add(1)
			})

			util.PrintConfig("Receiving from remote port", portConfig)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := runAdapter(ctx, repo, func() bool { return limit > 0 && received.Load() >= limit })
			fmt.Printf("received %d files\n", received.Load())
			return err
		},
	}
)

func init() {
	key := "delete"
	sendCmd.Flags().Bool(key, false, util.WrapString("Delete files once the peer acknowledged them"))

	key = "count"
	receiveCmd.Flags().Int(key, 0, util.WrapString("Stop after this many flow files (0 = until interrupted)"))
}

// enqueueDir queues every regular file of dir and returns their number
func enqueueDir(repo *memsession.Repository, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return 0, err
		}
		repo.Enqueue(map[string]string{
			flow.AttrFilename: entry.Name(),
			flow.AttrPath:     dir,
		}, content)
		count++
	}
	return count, nil
}

// fileName returns a safe local file name for a received flow file
func fileName(ff *flow.FlowFile) string {
	name, _ := ff.Attribute(flow.AttrFilename)
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return ff.ID.String()
	}
	return name
}
