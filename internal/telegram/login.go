package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"
)

// LoginOptions configures an interactive authorization.
type LoginOptions struct {
	Options
	// Phone selects the code flow. Empty uses a QR login token.
	Phone string
	// ShowQR renders a login token url. Called again on every token refresh.
	ShowQR func(url string)
	// Prompt asks the operator for a value (login code, 2fa password).
	Prompt func(label string) (string, error)
}

// Login authorizes the session in opts.Storage. An already authorized
// session is left alone. The logged in user is returned.
func Login(ctx context.Context, opts LoginOptions) (*tg.User, error) {
	if opts.AppID == 0 || opts.AppHash == "" {
		return nil, errors.New("telegram: app id and hash are required")
	}
	if opts.Prompt == nil {
		return nil, errors.New("telegram: prompt is required")
	}

	dispatcher := tg.NewUpdateDispatcher()
	zapLog := opts.ZapLog
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	client := telegram.NewClient(opts.AppID, opts.AppHash, telegram.Options{
		SessionStorage: opts.Storage,
		UpdateHandler:  &dispatcher,
		Logger:         zapLog,
	})

	var self *tg.User
	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if opts.Phone != "" {
				err = phoneLogin(ctx, client, opts)
			} else {
				err = qrLogin(ctx, client, &dispatcher, opts)
			}
			if err != nil {
				return err
			}
		}
		self, err = client.Self(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return self, nil
}

func qrLogin(ctx context.Context, client *telegram.Client, d *tg.UpdateDispatcher, opts LoginOptions) error {
	if opts.ShowQR == nil {
		return errors.New("telegram: qr renderer is required")
	}
	loggedIn := qrlogin.OnLoginToken(d)
	_, err := client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
		opts.ShowQR(token.URL())
		return nil
	})
	if tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
		password, perr := opts.Prompt("2fa password")
		if perr != nil {
			return perr
		}
		_, err = client.Auth().Password(ctx, password)
	}
	if err != nil {
		return fmt.Errorf("qr login: %w", err)
	}
	return nil
}

func phoneLogin(ctx context.Context, client *telegram.Client, opts LoginOptions) error {
	flow := auth.NewFlow(promptAuth{phone: opts.Phone, prompt: opts.Prompt}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("phone login: %w", err)
	}
	return nil
}

// promptAuth answers the code flow from the operator's terminal. Sign up is
// refused: only existing accounts can log in.
type promptAuth struct {
	phone  string
	prompt func(label string) (string, error)
}

var _ auth.UserAuthenticator = promptAuth{}

func (a promptAuth) Phone(context.Context) (string, error) { return a.phone, nil }

func (a promptAuth) Password(context.Context) (string, error) {
	return a.prompt("2fa password")
}

func (a promptAuth) Code(context.Context, *tg.AuthSentCode) (string, error) {
	return a.prompt("login code")
}

func (promptAuth) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (promptAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("telegram: sign up is not supported")
}

// ImportTDesktop copies the account at index from a Telegram Desktop tdata
// directory into storage.
func ImportTDesktop(ctx context.Context, storage session.Storage, tdataPath string, index int) error {
	accounts, err := tdesktop.Read(tdataPath, nil)
	if err != nil {
		return fmt.Errorf("read tdata: %w", err)
	}
	if index < 0 || index >= len(accounts) {
		return fmt.Errorf("tdata: account %d not found (%d available)", index+1, len(accounts))
	}
	data, err := session.TDesktopSession(accounts[index])
	if err != nil {
		return fmt.Errorf("convert tdata session: %w", err)
	}
	loader := session.Loader{Storage: storage}
	if err := loader.Save(ctx, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
