/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ringbuf

import "time"

// budget tracks the two timeouts of one blocking call.
type budget struct {
	single   time.Duration
	total    time.Duration
	deadline time.Time
}

func newBudget(single, total time.Duration) budget {
	bg := budget{single: single, total: total}
	if total == 0 {
		bg.single = 0
	}
	if total > 0 {
		bg.deadline = time.Now().Add(total)
	}
	return bg
}

// next returns the timeout for the next wait.
func (bg budget) next() time.Duration {
	if bg.total <= 0 {
		return bg.single
	}
	left := time.Until(bg.deadline)
	if left <= 0 {
		return 0
	}
	if bg.single < 0 || bg.single > left {
		return left
	}
	return bg.single
}

func (bg budget) exhausted() bool {
	return bg.total > 0 && !time.Now().Before(bg.deadline)
}
