package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"newstech/pkg/apierr"
	"newstech/pkg/listing"
	"newstech/pkg/models"
	"newstech/pkg/pagination"
	"newstech/pkg/publish"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of posts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a post after confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Create a post, or edit one with --id",
	Long: `publish asks for any field not given as a flag. With --id the current
values of the post are offered as defaults.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	listCmd.Flags().StringP("query", "q", "", "text filter")
	listCmd.Flags().IntP("page", "p", 1, "page number")
	listCmd.Flags().String("ordem", string(models.SortRecent), "sort: recente, antigo, titulo-az, titulo-za")
	listCmd.Flags().Int("per-page", 0, "items per page (default from config)")

	deleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation")

	publishCmd.Flags().Int("id", 0, "post to edit")
	publishCmd.Flags().String("titulo", "", "title")
	publishCmd.Flags().String("autor", "", "author")
	publishCmd.Flags().String("conteudo", "", "body text")
	publishCmd.Flags().String("image", "", "path of an image to upload")

	rootCmd.AddCommand(listCmd, deleteCmd, publishCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd, "warn")
	if err != nil {
		return err
	}
	defer rt.Close()

	perPage, _ := cmd.Flags().GetInt("per-page")
	if perPage < 1 {
		perPage = rt.Config.List.PerPage
	}
	q := models.NewQuery(perPage)
	q.Q, _ = cmd.Flags().GetString("query")
	q.Page, _ = cmd.Flags().GetInt("page")
	sort, _ := cmd.Flags().GetString("ordem")
	q.Sort = models.ParseSortOrder(sort)

	res := listing.Fetch(requestContext(cmd), rt.Backend, nil, q.Normalized(perPage))
	if res.Err != nil {
		return fmt.Errorf("%s (%w)", apierr.UserMessage(res.Err, "Erro ao carregar as notícias."), res.Err)
	}
	r, err := rt.Renderer()
	if err != nil {
		return err
	}
	return r.Text(cmd.OutOrStdout(), res.Page, pagination.Build(res.Page.Meta, rt.Config.List.Window))
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 {
		return fmt.Errorf("invalid id %q", args[0])
	}
	rt, err := openRuntime(cmd, "warn")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := requestContext(cmd)
	var confirm listing.Confirmer = listing.Confirmed
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		confirm = listing.ConfirmFunc(func(ctx context.Context, id int) (bool, error) {
			post, err := rt.Backend.GetPost(ctx, id)
			if err != nil {
				return false, err
			}
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Excluir #%d %q", id, post.Title()),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				if errors.Is(err, promptui.ErrAbort) {
					return false, nil
				}
				return false, err
			}
			return true, nil
		})
	}

	ctrl := listing.New(rt.Backend, nil, rt.Config.List.PerPage, listing.WithContext(ctx))
	defer ctrl.Close()
	deleted, err := ctrl.Delete(ctx, id, confirm)
	if err != nil {
		return fmt.Errorf("%s (%w)", apierr.UserMessage(err, "Erro ao excluir a postagem."), err)
	}
	if deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "Postagem #%d excluída.\n", id)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelado.")
	}
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd, "warn")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := requestContext(cmd)
	form := publish.NewForm(rt.Backend, rt.Session, rt.Config.Server.LoginURL, rt.Log)
	out, err := form.Gate(ctx)
	if err != nil {
		return err
	}
	if out.Redirect != "" {
		return errors.New("login required: pass the session with --cookie")
	}

	id, _ := cmd.Flags().GetInt("id")
	if id > 0 {
		if _, err := form.Load(ctx, id); err != nil {
			return fmt.Errorf("%s (%w)", publish.LoadFailedMessage, err)
		}
	}
	snap := form.Snapshot()

	fields := snap.Fields
	for _, f := range []struct {
		flag  string
		label string
		dst   *string
	}{
		{"titulo", "Título", &fields.Titulo},
		{"autor", "Autor", &fields.Autor},
		{"conteudo", "Conteúdo", &fields.Conteudo},
	} {
		if v, _ := cmd.Flags().GetString(f.flag); v != "" {
			*f.dst = v
			continue
		}
		if f.flag == "autor" && snap.AuthorLocked {
			continue
		}
		v, err := ask(f.label, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var image *models.ImageFile
	if path, _ := cmd.Flags().GetString("image"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		image = &models.ImageFile{Filename: filepath.Base(path), Data: data}
	}

	out, err = form.Submit(ctx, id, fields, image)
	if err != nil {
		return errors.New(form.Snapshot().Message())
	}
	if out.Redirect == rt.Config.Server.LoginURL {
		return errors.New("login required: pass the session with --cookie")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Postagem #%d salva.\n", out.Post.ID)
	return nil
}

func ask(label, def string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New(publish.MissingFieldsMessage)
			}
			return nil
		},
	}
	v, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return v, nil
}
