package routes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vango"
	. "github.com/vango-go/vango/el"
	"github.com/vango-go/vango/setup"

	"helper_chat/internal/backend"
	"helper_chat/internal/locale"
	"helper_chat/internal/localstate"
	chatsvc "helper_chat/internal/services/chat"
)

type messageView struct {
	Key         string
	Role        string
	Text        string
	Placeholder bool
	TimeLabel   string
}

type authSubmit struct {
	Mode         string
	Email        string
	Password     string
	UniversityID string
}

var assistantStyles = []string{"balanced", "concise", "detailed"}

func IndexPage(ctx vango.Ctx) *vango.VNode {
	return Div(AppRoot(vango.NoProps{}))
}

func AppRoot(props vango.NoProps) vango.Component {
	return vango.Setup(props, func(s vango.SetupCtx[vango.NoProps]) vango.RenderFn {
		dependencies := getDeps()
		if dependencies.ConfigErr != nil {
			return func() *vango.VNode {
				return configErrorScreen(locale.Default())
			}
		}

		sessionManager := dependencies.Session
		reconciler := dependencies.Chat
		profileService := dependencies.Profile
		sessionCtx := s.Ctx()

		currentUser := setup.Signal(&s, sessionManager.Current())
		conversations := setup.Signal(&s, []chatsvc.Conversation{})
		activeID := setup.Signal(&s, chatsvc.ID{})
		inputText := setup.Signal(&s, "")
		errorText := setup.Signal(&s, "")
		confirmDeleteID := setup.Signal(&s, "")
		localeKey := setup.Signal(&s, dependencies.Config.DefaultLocale)

		authMode := setup.Signal(&s, "signin")
		authEmail := setup.Signal(&s, "")
		authPassword := setup.Signal(&s, "")
		authUniversity := setup.Signal(&s, "")
		authError := setup.Signal(&s, "")
		authNotice := setup.Signal(&s, "")
		universities := setup.Signal(&s, []backend.UniversityRow{})

		profileOpen := setup.Signal(&s, false)
		profileTab := setup.Signal(&s, "about")
		profileRow := setup.Signal(&s, backend.ProfileRow{})
		universityName := setup.Signal(&s, "")
		profileError := setup.Signal(&s, "")
		firstNameInput := setup.Signal(&s, "")
		lastNameInput := setup.Signal(&s, "")
		bioInput := setup.Signal(&s, "")
		hobbyInput := setup.Signal(&s, "")
		eventTitle := setup.Signal(&s, "")
		eventStart := setup.Signal(&s, "")
		eventEnd := setup.Signal(&s, "")
		eventLocation := setup.Signal(&s, "")

		refreshChats := func() {
			list, active := reconciler.Snapshot()
			conversations.Set(list)
			activeID.Set(active)
		}

		refreshProfile := func() {
			if row, ok := profileService.Current(); ok {
				profileRow.Set(row)
				firstNameInput.Set(row.FirstName)
				lastNameInput.Set(row.LastName)
				bioInput.Set(row.Bio)
			} else {
				profileRow.Set(backend.ProfileRow{})
			}
			universityName.Set(profileService.UniversityName())
		}

		loadUniversitiesAction := setup.Action(&s,
			func(workCtx context.Context, _ struct{}) ([]backend.UniversityRow, error) {
				return profileService.Universities(workCtx)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(value any) {
				rows, ok := value.([]backend.UniversityRow)
				if !ok {
					return
				}
				universities.Set(rows)
			}),
			vango.ActionOnError(func(err error) {
				authError.Set(err.Error())
			}),
		)

		restoreLocaleAction := setup.Action(&s,
			func(workCtx context.Context, _ struct{}) (string, error) {
				value, err := dependencies.State.Get(workCtx, localstate.KeyLocale)
				if errors.Is(err, localstate.ErrNotFound) {
					return dependencies.Config.DefaultLocale, nil
				}
				return value, err
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(value any) {
				key, ok := value.(string)
				if !ok || key == "" {
					return
				}
				bundle := locale.ForKey(key)
				localeKey.Set(bundle.Key)
				reconciler.SetReplyText(bundle.T("chat.aiResponse"))
			}),
			vango.ActionOnError(func(err error) {}),
		)

		persistLocaleAction := setup.Action(&s,
			func(workCtx context.Context, key string) (struct{}, error) {
				return struct{}{}, dependencies.State.Set(workCtx, localstate.KeyLocale, key, time.Now().UTC())
			},
			vango.CancelLatest(),
			vango.ActionOnSuccess(func(any) {}),
			vango.ActionOnError(func(err error) {}),
		)

		authAction := setup.Action(&s,
			func(workCtx context.Context, submit authSubmit) (authSubmit, error) {
				if submit.Mode == "signup" {
					return submit, sessionManager.SignUp(workCtx, submit.Email, submit.Password, submit.UniversityID)
				}
				return submit, sessionManager.SignIn(workCtx, submit.Email, submit.Password)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(value any) {
				submit, ok := value.(authSubmit)
				if !ok {
					return
				}
				authPassword.Set("")
				authError.Set("")
				if submit.Mode == "signup" && sessionManager.Current() == nil {
					// Email confirmation pending; no session yet.
					authNotice.Set(locale.ForKey(localeKey.Get()).T("auth.signupSuccess"))
				}
			}),
			vango.ActionOnError(func(err error) {
				authNotice.Set("")
				authError.Set(err.Error())
			}),
		)

		signOutAction := setup.Action(&s,
			func(workCtx context.Context, _ struct{}) (struct{}, error) {
				return struct{}{}, sessionManager.SignOut(workCtx)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(any) {}),
			vango.ActionOnError(func(err error) {
				errorText.Set(err.Error())
			}),
		)

		sendAction := setup.Action(&s,
			func(workCtx context.Context, text string) (struct{}, error) {
				return struct{}{}, reconciler.Send(workCtx, text)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(any) {
				errorText.Set("")
			}),
			vango.ActionOnError(func(err error) {
				errorText.Set(err.Error())
			}),
		)

		selectAction := setup.Action(&s,
			func(workCtx context.Context, id chatsvc.ID) (struct{}, error) {
				reconciler.Select(id)
				return struct{}{}, nil
			},
			vango.CancelLatest(),
			vango.ActionOnSuccess(func(any) {
				confirmDeleteID.Set("")
			}),
			vango.ActionOnError(func(err error) {}),
		)

		deleteAction := setup.Action(&s,
			func(workCtx context.Context, id chatsvc.ID) (struct{}, error) {
				return struct{}{}, reconciler.Delete(workCtx, id)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(any) {
				errorText.Set("")
			}),
			vango.ActionOnError(func(err error) {
				errorText.Set(err.Error())
			}),
		)

		profileAction := setup.Action(&s,
			func(workCtx context.Context, op func(context.Context) error) (struct{}, error) {
				return struct{}{}, op(workCtx)
			},
			vango.DropWhileRunning(),
			vango.ActionOnSuccess(func(any) {
				profileError.Set("")
				hobbyInput.Set("")
				eventTitle.Set("")
				eventStart.Set("")
				eventEnd.Set("")
				eventLocation.Set("")
			}),
			vango.ActionOnError(func(err error) {
				profileError.Set(err.Error())
			}),
		)

		s.OnMount(func() vango.Cleanup {
			removeChat := reconciler.OnChange(func() {
				sessionCtx.Dispatch(refreshChats)
			})
			removeProfile := profileService.OnChange(func() {
				sessionCtx.Dispatch(refreshProfile)
			})
			removeSession := sessionManager.OnChange(func(user *backend.User) {
				sessionCtx.Dispatch(func() {
					currentUser.Set(user)
					if user == nil {
						profileOpen.Set(false)
						inputText.Set("")
						errorText.Set("")
					}
				})
			})
			refreshChats()
			refreshProfile()
			loadUniversitiesAction.Run(struct{}{})
			restoreLocaleAction.Run(struct{}{})
			return vango.Cleanup(func() {
				removeChat()
				removeProfile()
				removeSession()
			})
		})

		onAuthSubmit := func() {
			bundle := locale.ForKey(localeKey.Get())
			mode := authMode.Get()
			email := strings.TrimSpace(authEmail.Get())
			password := authPassword.Get()
			if email == "" || password == "" {
				return
			}
			if mode == "signup" && authUniversity.Get() == "" {
				authError.Set(bundle.T("auth.error.selectUniversity"))
				return
			}
			authNotice.Set("")
			authAction.Run(authSubmit{
				Mode:         mode,
				Email:        email,
				Password:     password,
				UniversityID: authUniversity.Get(),
			})
		}

		onSend := func() {
			text := strings.TrimSpace(inputText.Get())
			if text == "" {
				return
			}
			inputText.Set("")
			sendAction.Run(text)
		}

		onToggleLocale := func() {
			next := locale.ForKey(localeKey.Get()).Next()
			localeKey.Set(next.Key)
			reconciler.SetReplyText(next.T("chat.aiResponse"))
			persistLocaleAction.Run(next.Key)
		}

		return func() *vango.VNode {
			bundle := locale.ForKey(localeKey.Get())
			user := currentUser.Get()
			if user == nil {
				return authScreen(authScreenState{
					Bundle:       bundle,
					Mode:         authMode.Get(),
					Email:        authEmail.Get(),
					Password:     authPassword.Get(),
					UniversityID: authUniversity.Get(),
					Universities: universities.Get(),
					ErrorText:    authError.Get(),
					NoticeText:   authNotice.Get(),
					SetMode: func(mode string) {
						authMode.Set(mode)
						authError.Set("")
						authNotice.Set("")
					},
					SetEmail:      func(value string) { authEmail.Set(value) },
					SetPassword:   func(value string) { authPassword.Set(value) },
					SetUniversity: func(value string) { authUniversity.Set(value) },
					Submit:        onAuthSubmit,
					ToggleLocale:  onToggleLocale,
				})
			}

			chatList := conversations.Get()
			active := activeID.Get()
			activeConversation, haveActive := conversationByID(chatList, active)

			var drawer *vango.VNode
			if profileOpen.Get() {
				drawer = profileDrawer(profileDrawerState{
					Bundle:         bundle,
					Tab:            profileTab.Get(),
					Profile:        profileRow.Get(),
					UniversityName: universityName.Get(),
					ErrorText:      profileError.Get(),
					FirstName:      firstNameInput.Get(),
					LastName:       lastNameInput.Get(),
					Bio:            bioInput.Get(),
					Hobby:          hobbyInput.Get(),
					EventTitle:     eventTitle.Get(),
					EventStart:     eventStart.Get(),
					EventEnd:       eventEnd.Get(),
					EventLocation:  eventLocation.Get(),
					SetTab:         func(tab string) { profileTab.Set(tab) },
					SetFirstName:   func(value string) { firstNameInput.Set(value) },
					SetLastName:    func(value string) { lastNameInput.Set(value) },
					SetBio:         func(value string) { bioInput.Set(value) },
					SetHobby:       func(value string) { hobbyInput.Set(value) },
					SetEventTitle:  func(value string) { eventTitle.Set(value) },
					SetEventStart:  func(value string) { eventStart.Set(value) },
					SetEventEnd:    func(value string) { eventEnd.Set(value) },
					SetEventLoc:    func(value string) { eventLocation.Set(value) },
					Close:          func() { profileOpen.Set(false) },
					SaveName: func() {
						first, last := firstNameInput.Get(), lastNameInput.Get()
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.SetName(workCtx, first, last)
						})
					},
					SaveBio: func() {
						bio := bioInput.Get()
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.SetBio(workCtx, bio)
						})
					},
					AddHobby: func() {
						hobby := hobbyInput.Get()
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.AddHobby(workCtx, hobby)
						})
					},
					RemoveHobby: func(hobby string) {
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.RemoveHobby(workCtx, hobby)
						})
					},
					SetStyle: func(style string) {
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.SetStyle(workCtx, style)
						})
					},
					ToggleEmail: func() {
						enabled := !profileRow.Get().Preferences.Notifications.Email
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.SetEmailNotifications(workCtx, enabled)
						})
					},
					TogglePush: func() {
						enabled := !profileRow.Get().Preferences.Notifications.Push
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.SetPushNotifications(workCtx, enabled)
						})
					},
					AddEvent: func() {
						title, start := eventTitle.Get(), eventStart.Get()
						end, location := eventEnd.Get(), eventLocation.Get()
						profileAction.Run(func(workCtx context.Context) error {
							_, err := profileService.AddEvent(workCtx, title, start, end, location)
							return err
						})
					},
					RemoveEvent: func(eventID string) {
						profileAction.Run(func(workCtx context.Context) error {
							return profileService.RemoveEvent(workCtx, eventID)
						})
					},
				})
			}

			var errorNode *vango.VNode
			if errorText.Get() != "" {
				errorNode = Div(Class("mb-2 text-sm text-red-300"), Text(errorText.Get()))
			}

			var messageNodes *vango.VNode
			if haveActive && len(activeConversation.Messages) > 0 {
				messageNodes = Div(Class("space-y-4"),
					RangeKeyed(buildMessageViews(activeConversation, bundle),
						func(view messageView) any { return view.Key },
						func(view messageView) *vango.VNode {
							return messageNode(view)
						},
					),
				)
			} else {
				greeting := bundle.T("chat.initialGreeting")
				if universityName.Get() != "" {
					greeting += " " + universityName.Get()
				}
				messageNodes = Div(Class("h-full flex flex-col items-center justify-center gap-2 text-white/70"),
					Div(Class("text-lg"), Text(greeting)),
					Div(Class("text-sm"), Text(bundle.T("chat.initialPrompt"))),
				)
			}

			return Div(Class("h-screen bg-[#0b1320] text-white"),
				Div(Class("h-full flex"),
					Aside(Class("w-80 flex flex-col border-r border-white/10 bg-[#0f1a2b]"),
						Data("module", "/js/islands/hash-sync.js"),
						JSIsland("hash-sync", map[string]any{
							"fragment": active.String(),
						}),
						IslandPlaceholder(Div()),
						Div(Class("p-4 border-b border-white/10"),
							Button(
								Class("w-full rounded-md px-3 py-2 text-sm font-medium bg-[#1e2c45] hover:bg-[#253756] transition-colors"),
								OnClick(func() {
									selectAction.Run(chatsvc.ID{})
								}),
								Text(bundle.T("sidebar.newChat")),
							),
						),
						Div(Class("flex-1 overflow-y-auto p-2 space-y-2"),
							RangeKeyed(chatList,
								func(conversation chatsvc.Conversation) any { return conversation.ID.String() },
								func(conversation chatsvc.Conversation) *vango.VNode {
									rowClass := "flex items-center gap-1 rounded-md border border-transparent bg-[#15243a] hover:bg-[#1b2d47] transition-colors"
									if conversation.ID == active {
										rowClass = "flex items-center gap-1 rounded-md bg-[#29416a] border border-[#3f5f90]"
									}
									id := conversation.ID
									return Div(Class(rowClass),
										Attr("data-chat-id", id.String()),
										Button(
											Class("flex-1 min-w-0 text-left px-3 py-2 text-sm"),
											OnClick(func() {
												selectAction.Run(id)
											}),
											Div(Class("truncate font-medium"), Text(conversation.Title)),
											Div(Class("text-xs truncate mt-1 text-white/60"), Text(conversation.CreatedAt.Format("Jan 2, 15:04"))),
										),
										func() *vango.VNode {
											if confirmDeleteID.Get() == id.String() {
												return Button(
													Class("px-2 py-2 text-xs font-semibold text-red-300 hover:text-red-200"),
													Attr("title", bundle.T("sidebar.deleteConfirm")),
													OnClick(func() {
														confirmDeleteID.Set("")
														deleteAction.Run(id)
													}),
													Text(bundle.T("sidebar.delete")+"?"),
												)
											}
											return Button(
												Class("px-2 py-2 text-xs text-white/50 hover:text-red-300"),
												Attr("title", bundle.T("sidebar.delete")),
												OnClick(func() {
													confirmDeleteID.Set(id.String())
												}),
												Text("✕"),
											)
										}(),
									)
								},
							),
						),
						Div(Class("p-3 border-t border-white/10 flex items-center justify-between gap-2"),
							Div(Class("text-xs truncate text-white/60"), Text(user.Email)),
							Button(
								Class("rounded-md px-3 py-1.5 text-xs border border-white/30 hover:bg-white/10"),
								OnClick(func() { signOutAction.Run(struct{}{}) }),
								Text(bundle.T("sidebar.logout")),
							),
						),
					),
					Div(Class("flex-1 flex flex-col min-w-0"),
						Div(Class("h-16 px-4 flex items-center justify-between gap-3 border-b border-white/10 bg-[#0f1a2b]"),
							Div(Class("text-sm truncate text-white/80"), Text(bundle.T("app.title"))),
							Div(Class("flex items-center gap-2"),
								Button(
									Class("rounded-md px-3 py-1.5 text-sm border border-white/30 hover:bg-white/10"),
									OnClick(onToggleLocale),
									Text(strings.ToUpper(bundle.Next().Key)),
								),
								Button(
									Class("rounded-md px-3 py-1.5 text-sm border border-white/30 hover:bg-white/10"),
									OnClick(func() { profileOpen.Set(!profileOpen.Get()) }),
									Text(bundle.T("profile.title")),
								),
							),
						),
						Div(Class("flex-1 overflow-y-auto p-4 space-y-4"),
							messageNodes,
						),
						Div(Class("p-4 border-t border-white/10 bg-[#0f1a2b]"),
							errorNode,
							Div(Class("flex items-end gap-2"),
								Textarea(
									Class("flex-1 min-h-24 max-h-60 rounded-md px-3 py-2 text-sm resize-y bg-[#15243a] border border-white/20 placeholder:text-white/60"),
									Placeholder(bundle.T("chat.inputPlaceholder")),
									Value(inputText.Get()),
									OnInput(func(value string) {
										inputText.Set(value)
									}),
								),
								Button(
									Class("rounded-md px-4 py-2 text-sm font-semibold bg-[#2457d6] hover:bg-[#2e63e0] disabled:opacity-50"),
									OnClick(onSend),
									Disabled(strings.TrimSpace(inputText.Get()) == ""),
									Text(bundle.T("chat.sendButton")),
								),
							),
						),
					),
					drawer,
				),
			)
		}
	})
}

func conversationByID(conversations []chatsvc.Conversation, id chatsvc.ID) (chatsvc.Conversation, bool) {
	if id.IsZero() {
		return chatsvc.Conversation{}, false
	}
	for _, conversation := range conversations {
		if conversation.ID == id {
			return conversation, true
		}
	}
	return chatsvc.Conversation{}, false
}

func buildMessageViews(conversation chatsvc.Conversation, bundle locale.Bundle) []messageView {
	views := make([]messageView, 0, len(conversation.Messages))
	for index, message := range conversation.Messages {
		text := message.Text
		if message.Placeholder {
			text = bundle.T("chat.typing")
		}
		views = append(views, messageView{
			Key:         fmt.Sprintf("%s-%d", conversation.ID.String(), index),
			Role:        message.Role,
			Text:        text,
			Placeholder: message.Placeholder,
			TimeLabel:   message.CreatedAt.Format("15:04"),
		})
	}
	return views
}

func messageNode(view messageView) *vango.VNode {
	bubbleClass := "rounded-lg px-4 py-3 max-w-3xl whitespace-pre-wrap border"
	containerClass := "flex"
	if view.Role == chatsvc.RoleUser {
		containerClass += " justify-end"
		bubbleClass += " bg-[#2457d6] border-[#3565dc]"
	} else {
		containerClass += " justify-start"
		bubbleClass += " bg-[#142235] border-white/10"
	}

	if view.Placeholder {
		return Div(Class(containerClass),
			Div(Class(bubbleClass),
				Div(Class("text-sm italic text-white/70"), Text(view.Text)),
			),
		)
	}

	return Div(Class(containerClass),
		Div(Class(bubbleClass),
			renderMessageText(view),
			Div(Class("text-[10px] mt-2 text-white/50"), Text(view.TimeLabel)),
		),
	)
}

func renderMessageText(view messageView) *vango.VNode {
	if view.Role != chatsvc.RoleAssistant {
		return Div(Text(view.Text))
	}

	islandID := "md-" + view.Key
	return Div(
		Class("md-renderer-host"),
		Data("module", "/js/islands/markdown-renderer.js"),
		JSIsland(islandID, map[string]any{
			"markdown": view.Text,
		}),
		IslandPlaceholder(
			Div(Class("md-renderer text-white/90"), Text(view.Text)),
		),
	)
}

func configErrorScreen(bundle locale.Bundle) *vango.VNode {
	return Div(Class("h-screen flex items-center justify-center bg-[#0b1320] text-white"),
		Div(Class("max-w-md rounded-lg border border-red-400/40 bg-[#142235] p-6 space-y-3"),
			Div(Class("text-lg font-semibold text-red-300"), Text(bundle.T("config.errorTitle"))),
			Div(Class("text-sm text-white/80"), Text(bundle.T("config.errorMessage"))),
		),
	)
}
