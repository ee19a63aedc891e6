package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/value"
)

func TestAccountApplyStateUpdatesBalances(t *testing.T) {
	a := New("SIM-001", "SIM", value.Cash)

	total, err := value.NewMoney("1000000.00", value.USD)
	require.NoError(t, err)
	free, err := value.NewMoney("925000.00", value.USD)
	require.NoError(t, err)
	locked, err := value.NewMoney("75000.00", value.USD)
	require.NoError(t, err)

	ev := event.NewAccountState("SIM-001", value.Cash,
		[]event.Balance{{Currency: value.USD, Total: total, Locked: locked, Free: free}},
		nil, 1, "FILL")

	require.NoError(t, a.Apply(ev))
	bal := a.BalanceOf(value.USD)
	assert.Equal(t, "925000.00 USD", bal.Free.String())
	assert.Equal(t, "75000.00 USD", bal.Locked.String())
}

func TestAccountApplyRejectsBrokenInvariant(t *testing.T) {
	a := New("SIM-001", "SIM", value.Cash)

	total, _ := value.NewMoney("100.00", value.USD)
	free, _ := value.NewMoney("10.00", value.USD)
	locked, _ := value.NewMoney("10.00", value.USD) // locked+free != total

	ev := event.NewAccountState("SIM-001", value.Cash,
		[]event.Balance{{Currency: value.USD, Total: total, Locked: locked, Free: free}},
		nil, 1, "FILL")

	err := a.Apply(ev)
	require.Error(t, err)
}
