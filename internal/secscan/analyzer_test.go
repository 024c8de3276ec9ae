package secscan

import (
	"strings"
	"testing"

	"dappforge/internal/pipeline"
)

func scanSource(t *testing.T, src string) []pipeline.SecurityWarning {
	t.Helper()
	return New().Scan([]pipeline.ContractFile{{Name: "Test.sol", Content: src}})
}

func hasFinding(findings []pipeline.SecurityWarning, fragment string) bool {
	for _, f := range findings {
		if strings.Contains(f.Message, fragment) {
			return true
		}
	}
	return false
}

func TestCleanContractHasNoFindings(t *testing.T) {
	src := `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.24;

contract Counter {
    uint256 public count;

    function increment() external {
        count += 1;
    }
}`
	if findings := scanSource(t, src); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestReentrancyCallValue(t *testing.T) {
	src := `pragma solidity ^0.8.24;
contract Vault {
    mapping(address => uint256) balances;
    function withdrawAll() internal {
        (bool ok, ) = msg.sender.call{value: balances[msg.sender]}("");
        balances[msg.sender] = 0;
    }
}`
	findings := scanSource(t, src)
	if !hasFinding(findings, "reentrancy") {
		t.Errorf("expected reentrancy finding, got %+v", findings)
	}
	for _, f := range findings {
		if strings.Contains(f.Message, "reentrancy") {
			if f.Severity != pipeline.SeverityError {
				t.Errorf("reentrancy must be severity error, got %s", f.Severity)
			}
			if f.Line != 5 {
				t.Errorf("expected line 5, got %d", f.Line)
			}
		}
	}
}

func TestTxOrigin(t *testing.T) {
	src := "pragma solidity ^0.8.24;\ncontract A { function f() internal view { require(tx.origin == address(0)); } }"
	if !hasFinding(scanSource(t, src), "tx.origin") {
		t.Error("expected tx.origin finding")
	}
}

func TestDelegatecallAndSelfdestruct(t *testing.T) {
	src := `pragma solidity ^0.8.24;
contract A {
    function f(address target, bytes memory data) internal {
        target.delegatecall(data);
    }
    function kill() internal {
        selfdestruct(payable(msg.sender));
    }
}`
	findings := scanSource(t, src)
	if !hasFinding(findings, "delegatecall") {
		t.Error("expected delegatecall finding")
	}
	if !hasFinding(findings, "selfdestruct") {
		t.Error("expected selfdestruct finding")
	}
}

func TestBlockTimestampIsWarning(t *testing.T) {
	src := "pragma solidity ^0.8.24;\ncontract A { function f() internal view returns (bool) { return block.timestamp > 0; } }"
	findings := scanSource(t, src)
	if !hasFinding(findings, "block.timestamp") {
		t.Fatal("expected block.timestamp finding")
	}
	for _, f := range findings {
		if strings.Contains(f.Message, "block.timestamp") && f.Severity != pipeline.SeverityWarning {
			t.Errorf("block.timestamp must be a warning, got %s", f.Severity)
		}
	}
}

func TestMissingPragma(t *testing.T) {
	if !hasFinding(scanSource(t, "contract A {}"), "pragma") {
		t.Error("expected missing-pragma finding")
	}
}

func TestPre08Overflow(t *testing.T) {
	src := `pragma solidity ^0.7.6;
contract A {
    uint256 total;
    function add(uint256 v) internal {
        total += v;
    }
}`
	if !hasFinding(scanSource(t, src), "overflow") {
		t.Error("expected overflow finding under pre-0.8 pragma")
	}

	modern := strings.Replace(src, "^0.7.6", "^0.8.24", 1)
	if hasFinding(scanSource(t, modern), "overflow") {
		t.Error("overflow rule must not fire under >=0.8")
	}
}

func TestPrivilegedFunctionWithoutModifier(t *testing.T) {
	src := `pragma solidity ^0.8.24;
contract A {
    function withdraw(uint256 amount) external {
    }
    function mint(address to, uint256 amount) external onlyOwner {
    }
}`
	findings := scanSource(t, src)
	count := 0
	for _, f := range findings {
		if strings.Contains(f.Message, "access-control") {
			count++
			if f.Line != 3 {
				t.Errorf("expected finding only on unguarded withdraw (line 3), got line %d", f.Line)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one access-control finding, got %d", count)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	src := `pragma solidity ^0.8.24;
contract A {
    // never use tx.origin here
    uint256 x;
}`
	if hasFinding(scanSource(t, src), "tx.origin") {
		t.Error("comment lines must not produce findings")
	}
}

func TestDeterministicOrdering(t *testing.T) {
	contracts := []pipeline.ContractFile{
		{Name: "B.sol", Content: "pragma solidity ^0.8.24;\ncontract B { function f() internal { selfdestruct(payable(msg.sender)); } }"},
		{Name: "A.sol", Content: "contract A {}"},
	}
	a := New()
	first := a.Scan(contracts)
	second := a.Scan(contracts)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic finding count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("finding %d differs between runs", i)
		}
	}
	if first[0].Contract != "B.sol" {
		t.Errorf("expected input order preserved, got %q first", first[0].Contract)
	}
}
