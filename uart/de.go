package uart

import (
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

// DriverEnable drives RS-485 transceiver DE line: high while transmitting.
type DriverEnable struct {
	chip  gpio.Chiper
	lines gpio.Lineser
}

func OpenDriverEnable(chipPath string, line uint32) (*DriverEnable, error) {
	chip, err := gpio.Open(chipPath, "easyuart")
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	de, err := NewDriverEnable(chip, line)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return de, nil
}

func NewDriverEnable(chip gpio.Chiper, line uint32) (*DriverEnable, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "easyuart-de", line)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio line=%d", line)
	}
	de := &DriverEnable{chip: chip, lines: lines}
	return de, de.Set(false)
}

func (self *DriverEnable) Set(on bool) error {
	var v byte
	if on {
		v = 1
	}
	self.lines.SetBulk(v)
	return errors.Annotate(self.lines.Flush(), "gpio DE flush")
}

func (self *DriverEnable) Close() error {
	err := self.lines.Close()
	if self.chip != nil {
		if err2 := self.chip.Close(); err == nil {
			err = err2
		}
	}
	return err
}
