package store

import "errors"

// Validation errors reported to the acting user. None of them mutate state.
var (
	ErrGameNotFound      = errors.New("игра в этом чате еще не создана")
	ErrNotInGame         = errors.New("вы не в игре")
	ErrAlreadyJoined     = errors.New("вы уже в игре")
	ErrUnknownNation     = errors.New("неизвестная страна")
	ErrNationTaken       = errors.New("эта страна уже занята другим игроком")
	ErrWarInProgress     = errors.New("сейчас идет война или подготовка к ней")
	ErrInsufficientFunds = errors.New("недостаточно средств")
)
